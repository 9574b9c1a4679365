package models

// These structs define the JSON payloads exchanged with the browser front end
// and the manifests consumed by the batch exporter.

// Manifest is the batch export input. Source is either a gs:// URI or an object
// name in the bucket the manifest was uploaded to.
type Manifest struct {
	Source      string       `json:"source"`
	Annotations []Annotation `json:"annotations"`
}

// DocumentLoadedResponse is returned after a PDF has been uploaded into a session.
type DocumentLoadedResponse struct {
	Filename   string         `json:"filename"`
	TotalPages int            `json:"totalPages"`
	Pages      []PageGeometry `json:"pages"`
	Notices    []Notice       `json:"notices,omitempty"`
}

// ClickRequest opens a text box on a page at canvas pixel coordinates.
type ClickRequest struct {
	Page int     `json:"page"`
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
	Style
}

// DraftRequest replaces the text typed into the open text box.
type DraftRequest struct {
	Text string `json:"text"`
}

// ZoomRequest carries one of "in", "out" or "reset".
type ZoomRequest struct {
	Action string `json:"action"`
}

// PageRequest carries one of "next", "prev" or "jump" (with Page).
type PageRequest struct {
	Action string `json:"action"`
	Page   int    `json:"page,omitempty"`
}

// Notice is a transient, auto-dismissing message for the user.
type Notice struct {
	Level   string `json:"level"`
	Message string `json:"message"`
}

// SessionStatus describes everything the front end needs to redraw.
type SessionStatus struct {
	SessionID       string         `json:"sessionId"`
	Filename        string         `json:"filename,omitempty"`
	TotalPages      int            `json:"totalPages"`
	CurrentPage     int            `json:"currentPage"`
	Zoom            float64        `json:"zoom"`
	CanPrev         bool           `json:"canPrev"`
	CanNext         bool           `json:"canNext"`
	Pages           []PageGeometry `json:"pages,omitempty"`
	Annotations     []Annotation   `json:"annotations"`
	PageAnnotations int            `json:"pageAnnotations"`
	Editing         bool           `json:"editing"`
	Notices         []Notice       `json:"notices,omitempty"`
}

// ErrorResponse is the body of every non-2xx JSON reply.
type ErrorResponse struct {
	Error string `json:"error"`
}
