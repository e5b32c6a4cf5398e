// Package preview decides how a library file is rendered and produces the
// matching preview state.
package preview

// Kind tags a preview State.
type Kind string

const (
	KindIdle    Kind = "idle"
	KindLoading Kind = "loading"
	KindText    Kind = "text"
	KindHTML    Kind = "html"
	KindImage   Kind = "image"
	KindIframe  Kind = "iframe"
	KindViewer  Kind = "viewer"
	KindMessage Kind = "message"
	KindError   Kind = "error"
)

// Viewer names the external viewer used for KindViewer states.
const ViewerOffice = "office"

// Link is a secondary link shown with a message.
type Link struct {
	Label string `json:"label"`
	URL   string `json:"url"`
}

// ImageInfo is best-effort metadata for image previews.
type ImageInfo struct {
	Width       int    `json:"width,omitempty"`
	Height      int    `json:"height,omitempty"`
	Orientation int    `json:"orientation,omitempty"`
	Format      string `json:"format,omitempty"`
}

// State is the single active preview. Only the fields relevant to Kind are set.
type State struct {
	Kind        Kind       `json:"kind"`
	Message     string     `json:"message,omitempty"`
	Content     string     `json:"content,omitempty"`
	URL         string     `json:"url,omitempty"`
	ThumbURL    string     `json:"thumbUrl,omitempty"`
	Alt         string     `json:"alt,omitempty"`
	Viewer      string     `json:"viewer,omitempty"`
	Note        string     `json:"note,omitempty"`
	DownloadURL string     `json:"downloadUrl,omitempty"`
	ExtraLink   *Link      `json:"extraLink,omitempty"`
	Image       *ImageInfo `json:"image,omitempty"`

	// ObjectID identifies the image object backing URL.
	ObjectID string `json:"-"`
}

// User-facing texts.
const (
	MsgLoading       = "Loading file..."
	MsgUnknownType   = "Unable to determine the file type."
	MsgLegacyDoc     = "The DOC format is outdated. Please save the document as DOCX."
	MsgConvertedLink = "Open the automatically created DOCX"
	MsgUnsupported   = "This file type is not supported yet."
	MsgFailed        = "Failed to load the file preview."
	MsgEmptyFile     = "File is empty."
	MsgEmptyDocument = "<p>Document is empty.</p>"
	MsgNoSheets      = "The spreadsheet contains no data."
	NoteViewer       = "Viewing through Office Viewer requires internet access."
	NoteDocxFallback = "The document is shown through Office Viewer. Internet access is required."
)

// Idle is the state with nothing selected.
func Idle() State { return State{Kind: KindIdle} }

// Loading is the state every new preview starts in.
func Loading() State { return State{Kind: KindLoading, Message: MsgLoading} }

// Text renders decoded plain text.
func Text(content string) State { return State{Kind: KindText, Content: content} }

// HTML renders sanitized markup.
func HTML(content string) State { return State{Kind: KindHTML, Content: content} }

// Iframe embeds url directly.
func Iframe(url string) State { return State{Kind: KindIframe, URL: url} }

// Viewer embeds url through the external office viewer.
func Viewer(url, note string) State {
	return State{Kind: KindViewer, URL: url, Viewer: ViewerOffice, Note: note}
}

// Message is an informational state with a download link.
func Message(msg, downloadURL string, extra *Link) State {
	return State{Kind: KindMessage, Message: msg, DownloadURL: downloadURL, ExtraLink: extra}
}

// Error is the terminal failure state.
func Error(msg, downloadURL string) State {
	return State{Kind: KindError, Message: msg, DownloadURL: downloadURL}
}

// Terminal reports whether s is a final preview outcome.
func (s State) Terminal() bool {
	return s.Kind != KindIdle && s.Kind != KindLoading
}
