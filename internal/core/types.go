package core

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Session is one conversation thread within a working directory. A session
// may be forked; children point back through ParentID.
type Session struct {
	ID        SessionID   `json:"id"`
	Directory string      `json:"directory"`
	ParentID  SessionID   `json:"parentID,omitempty"`
	Title     string      `json:"title"`
	Time      SessionTime `json:"time"`
	Revert    *Revert     `json:"revert,omitempty"`
	Summary   *Summary    `json:"summary,omitempty"`
	Share     *Share      `json:"share,omitempty"`
}

type SessionTime struct {
	Created  int64 `json:"created"`
	Updated  int64 `json:"updated"`
	Archived int64 `json:"archived,omitempty"`
}

// Archived reports whether the session has been archived.
func (s Session) Archived() bool {
	return s.Time.Archived != 0
}

// Revert marks the point a session has been rewound to. Messages with an ID
// at or after MessageID stay stored but are hidden from display and excluded
// from the next prompt.
type Revert struct {
	MessageID MessageID `json:"messageID"`
}

// Summary holds the file-change counts shown next to a session title.
type Summary struct {
	Files     int `json:"files"`
	Additions int `json:"additions"`
	Deletions int `json:"deletions"`
}

type Share struct {
	URL string `json:"url"`
}

// Message is one turn of a session. IDs within a session are totally
// ordered by string comparison; that order is the display order.
type Message struct {
	ID        MessageID   `json:"id"`
	SessionID SessionID   `json:"sessionID"`
	Role      Role        `json:"role"`
	Agent     string      `json:"agent,omitempty"`
	Model     string      `json:"model,omitempty"`
	Time      MessageTime `json:"time"`
}

type MessageTime struct {
	Created int64 `json:"created"`
}

type PartType string

const (
	PartText  PartType = "text"
	PartFile  PartType = "file"
	PartTool  PartType = "tool"
	PartImage PartType = "image"
)

// Part is a fragment of a message. Exactly one payload field is populated
// according to Type; parts of a message are ordered by ID.
type Part struct {
	ID        PartID    `json:"id"`
	MessageID MessageID `json:"messageID"`
	SessionID SessionID `json:"sessionID"`
	Type      PartType  `json:"type"`
	Text      string    `json:"text,omitempty"`
	File      *FileRef  `json:"file,omitempty"`
	Tool      *ToolUse  `json:"tool,omitempty"`
	Image     *ImageRef `json:"image,omitempty"`
}

type FileRef struct {
	Path string `json:"path"`
	MIME string `json:"mime,omitempty"`
}

type ToolUse struct {
	Name   string         `json:"name"`
	Status string         `json:"status,omitempty"`
	Input  map[string]any `json:"input,omitempty"`
	Output string         `json:"output,omitempty"`
}

type ImageRef struct {
	URL  string `json:"url"`
	MIME string `json:"mime,omitempty"`
}

// MessageWithParts pairs a message with its parts, as returned by the
// remote messages endpoint.
type MessageWithParts struct {
	Info  Message `json:"info"`
	Parts []Part  `json:"parts"`
}

type SessionStatus string

const (
	StatusIdle SessionStatus = "idle"
	StatusBusy SessionStatus = "busy"
)

// Permission is an outstanding approval request for a session. It is
// resolved exactly once and then removed from the pending queue.
type Permission struct {
	ID        PermissionID   `json:"id"`
	SessionID SessionID      `json:"sessionID"`
	Type      string         `json:"type"`
	Title     string         `json:"title"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Time      MessageTime    `json:"time"`
}

type PermissionResponse string

const (
	PermissionOnce   PermissionResponse = "once"
	PermissionAlways PermissionResponse = "always"
	PermissionReject PermissionResponse = "reject"
)

type WorktreeState string

const (
	WorktreeReady  WorktreeState = "ready"
	WorktreeFailed WorktreeState = "failed"
)
