package server

// clientMessage is one browser-to-bridge control frame. Type selects which
// of the optional fields are meaningful.
type clientMessage struct {
	Type string `json:"type"`

	// session.start
	PatientID int    `json:"patient_id,omitempty"`
	DoctorID  string `json:"doctor_id,omitempty"`
	Locale    string `json:"locale,omitempty"`
	Consent   bool   `json:"consent,omitempty"`

	// audio.append
	Audio string `json:"audio,omitempty"`

	// doctor.text
	Text string `json:"text,omitempty"`

	// control.mute
	Muted bool `json:"muted,omitempty"`
}

// Browser-to-bridge message types.
const (
	msgSessionStart     = "session.start"
	msgAudioAppend      = "audio.append"
	msgAudioCommit      = "audio.commit"
	msgResponseCreate   = "response.create"
	msgResponseCancel   = "response.cancel"
	msgControlMute      = "control.mute"
	msgControlStop      = "control.stop"
	msgDoctorText       = "doctor.text"
	msgObjectivePreview = "objective.preview"
	msgSoapPreview      = "soap.preview"
	msgFinalizeForce    = "finalize.force"
)
