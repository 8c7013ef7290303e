package model

import "fmt"

// Event is a message returned by the authority (MensagemRetorno) or raised
// locally when an operation cannot be prepared
type Event struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	Correction string `json:"correction,omitempty"`
}

func (e Event) String() string {
	if e.Correction != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.Correction)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}
