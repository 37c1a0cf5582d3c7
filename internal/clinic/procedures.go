package clinic

import (
	"strings"
	"time"
)

// ProcedureCode identifies a procedure in the ledger and in reply ids.
type ProcedureCode string

const (
	Cleaning     ProcedureCode = "LIMPIEZA"
	Extraction   ProcedureCode = "EXTRACCION"
	Orthodontics ProcedureCode = "ORTODONCIA"
	Whitening    ProcedureCode = "BLANQUEAMIENTO"
	Checkup      ProcedureCode = "REVISION"
	Filling      ProcedureCode = "RESINA"
	RootCanal    ProcedureCode = "ENDODONCIA"
)

// Procedure describes one bookable treatment.
type Procedure struct {
	Code     ProcedureCode
	Labels   map[Language]string
	Duration time.Duration
	// ColorID is the Google Calendar color of the event.
	ColorID   string
	ImageURL  string
	Details   map[Language]string
	PreDocURL string
	// Keywords are accent-free lowercase words that select the procedure.
	Keywords []string
}

// Label returns the display label, falling back to Spanish.
func (p Procedure) Label(lang Language) string {
	if l, ok := p.Labels[lang]; ok && l != "" {
		return l
	}
	return p.Labels[Spanish]
}

// Detail returns the description body, falling back to Spanish.
func (p Procedure) Detail(lang Language) string {
	if d, ok := p.Details[lang]; ok && d != "" {
		return d
	}
	return p.Details[Spanish]
}

// Match finds the procedure named in an accent-free lowercase text.
func (c *Clinic) Match(text string) (Procedure, bool) {
	for _, p := range c.Procedures {
		for _, kw := range p.Keywords {
			if strings.Contains(text, kw) {
				return p, true
			}
		}
	}
	return Procedure{}, false
}

func defaultProcedures() []Procedure {
	const docBase = "https://tudominio.com/pdfs/"
	return []Procedure{
		{
			Code:     Cleaning,
			Labels:   map[Language]string{Spanish: "🧼 Limpieza dental", English: "🧼 Cleaning"},
			Duration: 40 * time.Minute,
			ColorID:  "10",
			ImageURL: "https://i.imgur.com/cNIV947.png",
			Details: map[Language]string{
				Spanish: "🧼 *Eliminamos sarro, manchas y placa*\n\n*⏱️ Duración:* 30–40 min\n*💵 Costo:* $400 MXN",
				English: "🧼 *We remove tartar, stains and plaque*\n\n*⏱️ Duration:* 30–40 min\n*💵 Price:* $400 MXN",
			},
			PreDocURL: docBase + "pre_limpieza.pdf",
			Keywords:  []string{"limpieza", "cleaning"},
		},
		{
			Code:     Extraction,
			Labels:   map[Language]string{Spanish: "🦷 Extracción", English: "🦷 Extraction"},
			Duration: 30 * time.Minute,
			ColorID:  "11",
			ImageURL: "https://i.imgur.com/swN4HGt.png",
			Details: map[Language]string{
				Spanish: "🦷 Retiro de piezas *dentales* *dañadas*\n\n*⏱️ Duración*: 30 min aprox\n*💵 Desde*: $500 MXN",
				English: "🦷 Removal of *damaged teeth*\n\n*⏱️ Duration*: about 30 min\n*💵 From*: $500 MXN",
			},
			PreDocURL: docBase + "pre_extraccion.pdf",
			Keywords:  []string{"extraccion", "extraction", "sacar muela"},
		},
		{
			Code:     Orthodontics,
			Labels:   map[Language]string{Spanish: "😬 Ortodoncia", English: "😬 Braces"},
			Duration: 30 * time.Minute,
			ColorID:  "2",
			ImageURL: "https://i.imgur.com/8w3ocua.png",
			Details: map[Language]string{
				Spanish: "😬 Consulta para evaluación o seguimiento de *brackets*\n\n*⏱️ Duración*: 20–30 min\n*💵 Costo*: $350 MXN",
				English: "😬 Evaluation or follow-up visit for *braces*\n\n*⏱️ Duration*: 20–30 min\n*💵 Price*: $350 MXN",
			},
			PreDocURL: docBase + "pre_ortodoncia.pdf",
			Keywords:  []string{"ortodoncia", "brackets", "braces"},
		},
		{
			Code:     Whitening,
			Labels:   map[Language]string{Spanish: "💎 Blanqueamiento", English: "💎 Whitening"},
			Duration: 60 * time.Minute,
			ColorID:  "5",
			ImageURL: "https://i.imgur.com/WFB1Qsn.png",
			Details: map[Language]string{
				Spanish: "✨ Dientes más *blancos* desde la primera sesión\n\n*⏱️ Duración*: 40–60 min\n*💵 Costo*: $1,000 MXN",
				English: "✨ *Whiter* teeth from the first session\n\n*⏱️ Duration*: 40–60 min\n*💵 Price*: $1,000 MXN",
			},
			PreDocURL: docBase + "pre_blanqueamiento.pdf",
			Keywords:  []string{"blanqueamiento", "whitening"},
		},
		{
			Code:     Checkup,
			Labels:   map[Language]string{Spanish: "📋 Revisión general", English: "📋 General check-up"},
			Duration: 30 * time.Minute,
			ColorID:  "7",
			ImageURL: "https://i.imgur.com/jCCFA0v.png",
			Details: map[Language]string{
				Spanish: "📋 Evaluamos tu *salud bucal* completa\n\n*⏱️ Duración*: 20–30 min\n*💵 Costo*: $250 MXN",
				English: "📋 A complete *oral health* evaluation\n\n*⏱️ Duration*: 20–30 min\n*💵 Price*: $250 MXN",
			},
			PreDocURL: docBase + "pre_revision.pdf",
			Keywords:  []string{"revision", "checkup", "check-up"},
		},
		{
			Code:     Filling,
			Labels:   map[Language]string{Spanish: "🧩 Resina", English: "🧩 Composite filling"},
			Duration: 40 * time.Minute,
			ColorID:  "6",
			ImageURL: "https://i.imgur.com/cNIV947.png",
			Details: map[Language]string{
				Spanish: "🧩 *Resina* (relleno estético)\n\n*⏱️ Duración*: 40 min\n*💵 Costo*: variable",
				English: "🧩 *Composite* (tooth-colored filling)\n\n*⏱️ Duration*: 40 min\n*💵 Price*: varies",
			},
			PreDocURL: docBase + "pre_resina.pdf",
			Keywords:  []string{"resina", "filling"},
		},
		{
			Code:     RootCanal,
			Labels:   map[Language]string{Spanish: "🧠 Endodoncia", English: "🧠 Root canal"},
			Duration: 60 * time.Minute,
			ColorID:  "4",
			ImageURL: "https://i.imgur.com/swN4HGt.png",
			Details: map[Language]string{
				Spanish: "🧠 *Endodoncia* (tratamiento de conducto)\n\n*⏱️ Duración*: 60 min\n*💵 Costo*: variable",
				English: "🧠 *Root canal* treatment\n\n*⏱️ Duration*: 60 min\n*💵 Price*: varies",
			},
			PreDocURL: docBase + "pre_endodoncia.pdf",
			Keywords:  []string{"endodoncia", "root canal", "conducto"},
		},
	}
}
