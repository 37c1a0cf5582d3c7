package whatsapp

import "unicode/utf8"

// Message is an outbound Cloud API message payload.
type Message struct {
	MessagingProduct string       `json:"messaging_product"`
	RecipientType    string       `json:"recipient_type,omitempty"`
	To               string       `json:"to"`
	Type             string       `json:"type"`
	Text             *TextBody    `json:"text,omitempty"`
	Image            *Media       `json:"image,omitempty"`
	Document         *Media       `json:"document,omitempty"`
	Location         *Location    `json:"location,omitempty"`
	Interactive      *Interactive `json:"interactive,omitempty"`
	Template         *Template    `json:"template,omitempty"`
}

type TextBody struct {
	Body       string `json:"body"`
	PreviewURL bool   `json:"preview_url,omitempty"`
}

type Media struct {
	Link     string `json:"link"`
	Caption  string `json:"caption,omitempty"`
	Filename string `json:"filename,omitempty"`
}

type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Name      string  `json:"name,omitempty"`
	Address   string  `json:"address,omitempty"`
}

type Interactive struct {
	Type   string   `json:"type"`
	Header *Header  `json:"header,omitempty"`
	Body   *Caption `json:"body,omitempty"`
	Footer *Caption `json:"footer,omitempty"`
	Action Action   `json:"action"`
}

type Header struct {
	Type  string `json:"type"`
	Text  string `json:"text,omitempty"`
	Image *Media `json:"image,omitempty"`
}

type Caption struct {
	Text string `json:"text"`
}

type Action struct {
	Button   string        `json:"button,omitempty"`
	Buttons  []ReplyButton `json:"buttons,omitempty"`
	Sections []Section     `json:"sections,omitempty"`
}

type ReplyButton struct {
	Type  string   `json:"type"`
	Reply ReplyRef `json:"reply"`
}

type ReplyRef struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

type Section struct {
	Title string `json:"title,omitempty"`
	Rows  []Row  `json:"rows"`
}

type Row struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
}

type Template struct {
	Name       string              `json:"name"`
	Language   TemplateLanguage    `json:"language"`
	Components []TemplateComponent `json:"components,omitempty"`
}

type TemplateLanguage struct {
	Code string `json:"code"`
}

type TemplateComponent struct {
	Type       string              `json:"type"`
	Parameters []TemplateParameter `json:"parameters"`
}

type TemplateParameter struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// Choice is one selectable option of a list or button prompt.
type Choice struct {
	ID          string
	Title       string
	Description string
}

// ButtonPrompt is an interactive message with up to three reply buttons.
type ButtonPrompt struct {
	HeaderText  string
	HeaderImage string
	Body        string
	Footer      string
	Buttons     []Choice
}

// ListPrompt is an interactive message with a single-section option list.
type ListPrompt struct {
	HeaderText   string
	Body         string
	Footer       string
	Button       string
	SectionTitle string
	Rows         []Choice
}

// Cloud API limits on interactive content.
const (
	maxButtons       = 3
	maxButtonTitle   = 20
	maxListRows      = 10
	maxRowTitle      = 24
	maxRowDesc       = 72
	maxListButton    = 20
	maxSectionTitle  = 24
	defaultListTitle = "Opciones"
)

func base(to, kind string) Message {
	return Message{MessagingProduct: "whatsapp", RecipientType: "individual", To: to, Type: kind}
}

// Text builds a plain text message.
func Text(to, body string) Message {
	m := base(to, "text")
	m.Text = &TextBody{Body: body, PreviewURL: true}
	return m
}

// Document builds a document message.
func Document(to, link, filename, caption string) Message {
	m := base(to, "document")
	m.Document = &Media{Link: link, Filename: filename, Caption: caption}
	return m
}

// Image builds an image message.
func Image(to, link, caption string) Message {
	m := base(to, "image")
	m.Image = &Media{Link: link, Caption: caption}
	return m
}

// Pin builds a location message.
func Pin(to string, loc Location) Message {
	m := base(to, "location")
	m.Location = &loc
	return m
}

// Buttons builds a reply-button message. Extra buttons are dropped.
func Buttons(to string, p ButtonPrompt) Message {
	m := base(to, "interactive")
	in := &Interactive{Type: "button", Body: &Caption{Text: p.Body}}
	switch {
	case p.HeaderImage != "":
		in.Header = &Header{Type: "image", Image: &Media{Link: p.HeaderImage}}
	case p.HeaderText != "":
		in.Header = &Header{Type: "text", Text: p.HeaderText}
	}
	if p.Footer != "" {
		in.Footer = &Caption{Text: p.Footer}
	}
	for i, b := range p.Buttons {
		if i == maxButtons {
			break
		}
		in.Action.Buttons = append(in.Action.Buttons, ReplyButton{
			Type:  "reply",
			Reply: ReplyRef{ID: b.ID, Title: truncate(b.Title, maxButtonTitle)},
		})
	}
	m.Interactive = in
	return m
}

// List builds a list message with a single section. Extra rows are dropped.
func List(to string, p ListPrompt) Message {
	m := base(to, "interactive")
	title := p.SectionTitle
	if title == "" {
		title = defaultListTitle
	}
	section := Section{Title: truncate(title, maxSectionTitle)}
	for i, r := range p.Rows {
		if i == maxListRows {
			break
		}
		section.Rows = append(section.Rows, Row{
			ID:          r.ID,
			Title:       truncate(r.Title, maxRowTitle),
			Description: truncate(r.Description, maxRowDesc),
		})
	}
	in := &Interactive{
		Type:   "list",
		Body:   &Caption{Text: p.Body},
		Action: Action{Button: truncate(p.Button, maxListButton), Sections: []Section{section}},
	}
	if p.HeaderText != "" {
		in.Header = &Header{Type: "text", Text: p.HeaderText}
	}
	if p.Footer != "" {
		in.Footer = &Caption{Text: p.Footer}
	}
	m.Interactive = in
	return m
}

// TemplateMessage builds a pre-approved template message with body
// parameters.
func TemplateMessage(to, name, language string, params ...string) Message {
	m := base(to, "template")
	t := &Template{Name: name, Language: TemplateLanguage{Code: language}}
	if len(params) > 0 {
		comp := TemplateComponent{Type: "body"}
		for _, p := range params {
			comp.Parameters = append(comp.Parameters, TemplateParameter{Type: "text", Text: p})
		}
		t.Components = []TemplateComponent{comp}
	}
	m.Template = t
	return m
}

func truncate(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return string(runes[:max-1]) + "…"
}
