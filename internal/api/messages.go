// Package api defines the wire messages and gRPC service description of the diagnosis service.
// Messages travel as JSON using the "json" gRPC content subtype.
package api

// ClassifyImageRequest carries one photo. Encoding is optional ("jpeg", "png", "gif").
type ClassifyImageRequest struct {
	Image    []byte `json:"image"`
	Encoding string `json:"encoding,omitempty"`
}

// ClassifySymptomsRequest carries a free-text symptom description.
type ClassifySymptomsRequest struct {
	Text string `json:"text"`
}

// ClassifyCombinedRequest carries a photo together with a symptom description.
type ClassifyCombinedRequest struct {
	Image    []byte `json:"image"`
	Encoding string `json:"encoding,omitempty"`
	Text     string `json:"text"`
}

// ClassifyResponse is the decision for one request.
type ClassifyResponse struct {
	Label           string    `json:"label"`
	ClassIndex      int32     `json:"class_index"`
	Description     string    `json:"description,omitempty"`
	Confidence      float64   `json:"confidence"`
	Modality        string    `json:"modality"`
	Fingerprint     string    `json:"fingerprint"`
	LabelSetVersion string    `json:"label_set_version"`
	Uncertain       bool      `json:"uncertain"`
	Probabilities   []float64 `json:"probabilities,omitempty"`
}
