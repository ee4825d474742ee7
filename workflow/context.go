package workflow

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

var (
	ErrNoInteraction = errors.New("missing interaction text")
	ErrNoDeviceID    = errors.New("missing device id")
	ErrNoAccountID   = errors.New("missing account id")
	ErrBadChannel    = errors.New("invalid interaction channel")
	ErrMissingField  = errors.New("missing required field")
	ErrBadSLA        = errors.New("negative sla minutes")
)

// Channel is the medium a customer interaction arrived on.
type Channel string

const (
	ChannelChat  Channel = "chat"
	ChannelVoice Channel = "voice"
)

// Interaction is the raw customer interaction (chat text or transcribed voice).
type Interaction struct {
	Channel Channel `json:"channel,omitempty"`
	Text    string  `json:"text"`
}

// Device is the metadata of the affected printer.
type Device struct {
	DeviceID        string `json:"device_id"`
	Model           string `json:"model"`
	OS              string `json:"os"`
	FirmwareVersion string `json:"firmware_version"`
	Location        string `json:"location,omitempty"`
}

// Telemetry is a point-in-time snapshot of device telemetry.
// Unreported values are nil.
type Telemetry struct {
	Online           *bool      `json:"online,omitempty"`
	LastHeartbeat    *time.Time `json:"last_heartbeat_ts,omitempty"`
	ErrorCodes       []string   `json:"error_codes"`
	InkLevelCyan     *int       `json:"ink_level_cyan,omitempty"`
	InkLevelMagenta  *int       `json:"ink_level_magenta,omitempty"`
	InkLevelYellow   *int       `json:"ink_level_yellow,omitempty"`
	InkLevelBlack    *int       `json:"ink_level_black,omitempty"`
	SpoolerHealthy   *bool      `json:"spooler_healthy,omitempty"`
	NetworkReachable *bool      `json:"network_reachable,omitempty"`
}

// InkLevels returns the ink levels keyed by color.
func (t *Telemetry) InkLevels() map[string]*int {
	return map[string]*int{
		"cyan":    t.InkLevelCyan,
		"magenta": t.InkLevelMagenta,
		"yellow":  t.InkLevelYellow,
		"black":   t.InkLevelBlack,
	}
}

// Entitlement describes the customer account.
type Entitlement struct {
	AccountID           string `json:"account_id"`
	Tier                string `json:"tier"`
	SLAMinutes          int    `json:"sla_minutes"`
	HasInkSubscription  bool   `json:"has_ink_subscription"`
	ReplacementEligible bool   `json:"replacement_eligible"`
}

// UnmarshalJSON decodes data into e.
// ReplacementEligible defaults to true when absent.
func (e *Entitlement) UnmarshalJSON(data []byte) error {
	type entitlement Entitlement
	ent := entitlement{ReplacementEligible: true}
	if err := json.Unmarshal(data, &ent); err != nil {
		return err
	}
	*e = Entitlement(ent)
	return nil
}

// Context is the immutable input of a single run.
// It is constructed once at trigger time and never changed.
type Context struct {
	Type        Type
	Interaction Interaction
	Device      Device
	Telemetry   Telemetry
	Entitlement Entitlement
}

// TriggerRequest is the payload that starts a run.
// An empty WorkflowType asks for intent classification.
type TriggerRequest struct {
	WorkflowType Type        `json:"workflow_type,omitempty"`
	Interaction  Interaction `json:"interaction"`
	Device       Device      `json:"device"`
	Telemetry    Telemetry   `json:"telemetry"`
	Entitlement  Entitlement `json:"entitlement"`
}

// Validate checks r for the minimally required fields.
func (r *TriggerRequest) Validate() error {
	if r == nil || r.Interaction.Text == "" {
		return ErrNoInteraction
	}
	switch r.Interaction.Channel {
	case "", ChannelChat, ChannelVoice:
	default:
		return ErrBadChannel
	}
	if r.Device.DeviceID == "" {
		return ErrNoDeviceID
	}
	for _, f := range []struct{ name, value string }{
		{"device.model", r.Device.Model},
		{"device.os", r.Device.OS},
		{"device.firmware_version", r.Device.FirmwareVersion},
	} {
		if f.value == "" {
			return fmt.Errorf("%w: %s", ErrMissingField, f.name)
		}
	}
	if r.Entitlement.AccountID == "" {
		return ErrNoAccountID
	}
	if r.Entitlement.Tier == "" {
		return fmt.Errorf("%w: entitlement.tier", ErrMissingField)
	}
	// sla_minutes of zero is indistinguishable from absent
	if r.Entitlement.SLAMinutes < 0 {
		return ErrBadSLA
	}
	return nil
}

// NewContext builds the run context from r for workflow type t.
func (r *TriggerRequest) NewContext(t Type) *Context {
	interaction := r.Interaction
	if interaction.Channel == "" {
		interaction.Channel = ChannelChat
	}
	telemetry := r.Telemetry
	telemetry.ErrorCodes = append([]string(nil), r.Telemetry.ErrorCodes...)
	return &Context{
		Type:        t,
		Interaction: interaction,
		Device:      r.Device,
		Telemetry:   telemetry,
		Entitlement: r.Entitlement,
	}
}
