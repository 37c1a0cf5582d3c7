// Package actions encodes the identifiers carried by list rows and reply
// buttons. Every id is a typed action: a bare kind for payload-free actions,
// or kind ":" base64url(JSON) when the action carries context.
package actions

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
)

// Kind names what a tapped option asks for.
type Kind string

const (
	Book          Kind = "book"
	ShowLocation  Kind = "location"
	Advisor       Kind = "advisor"
	MainMenu      Kind = "main_menu"
	CancelFlow    Kind = "cancel_flow"
	ChooseProc    Kind = "proc"
	Schedule      Kind = "schedule"
	PickDate      Kind = "pick_date"
	ChooseDay     Kind = "day"
	ChoosePeriod  Kind = "period"
	ChooseHour    Kind = "hour"
	ChangeDetails Kind = "change"
	Confirm       Kind = "confirm"

	ConfirmAttendance Kind = "confirm_attendance"
	Confirm2h         Kind = "confirm_2h"
	CancelAppointment Kind = "cancel"
	RescheduleStart   Kind = "resched_start"

	UpgradeAccept Kind = "upgrade_accept"
	UpgradeSkip   Kind = "upgrade_skip"

	Resume Kind = "resume"

	// Unknown is returned for ids this version does not understand.
	Unknown Kind = ""
)

// Action is a decoded reply id. Only the fields relevant to Kind are set.
type Action struct {
	Kind      Kind   `json:"-"`
	Procedure string `json:"p,omitempty"`
	Date      string `json:"d,omitempty"`
	Period    string `json:"pe,omitempty"`
	Hour      string `json:"h,omitempty"`
	Name      string `json:"n,omitempty"`
	// Slot is an RFC 3339 start time the action targets.
	Slot string `json:"s,omitempty"`
	// From is the RFC 3339 start time of the appointment being moved.
	From string `json:"f,omitempty"`
	// Step is the funnel step a resume token returns to.
	Step string `json:"st,omitempty"`
	// Reschedule marks day/period/hour choices that move an existing
	// appointment instead of booking a new one.
	Reschedule bool `json:"r,omitempty"`
}

const separator = ":"

// ID renders the action as a reply id.
func (a Action) ID() string {
	payload := a
	payload.Kind = ""
	if payload == (Action{}) {
		return string(a.Kind)
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return string(a.Kind)
	}
	return string(a.Kind) + separator + base64.RawURLEncoding.EncodeToString(raw)
}

// Parse decodes a reply id. Unrecognized ids decode to Unknown without error;
// a recognized kind with a corrupt payload returns an error.
func Parse(id string) (Action, error) {
	id = strings.TrimSpace(id)
	kind, payload, hasPayload := strings.Cut(id, separator)
	k := Kind(kind)
	if !known(k) {
		return Action{Kind: Unknown}, nil
	}
	if !hasPayload {
		return Action{Kind: k}, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(payload)
	if err != nil {
		return Action{Kind: Unknown}, fmt.Errorf("actions: decode %s payload: %w", k, err)
	}
	var a Action
	if err := json.Unmarshal(raw, &a); err != nil {
		return Action{Kind: Unknown}, fmt.Errorf("actions: unmarshal %s payload: %w", k, err)
	}
	a.Kind = k
	return a, nil
}

func known(k Kind) bool {
	switch k {
	case Book, ShowLocation, Advisor, MainMenu, CancelFlow, ChooseProc, Schedule, PickDate,
		ChooseDay, ChoosePeriod, ChooseHour, ChangeDetails, Confirm,
		ConfirmAttendance, Confirm2h, CancelAppointment, RescheduleStart,
		UpgradeAccept, UpgradeSkip, Resume:
		return true
	}
	return false
}
