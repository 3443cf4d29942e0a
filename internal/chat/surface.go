package chat

import (
	"html/template"
	"sync"
)

// Surface is where a session puts its markup. The web host answers a request with it,
// the live feed turns it into websocket frames.
type Surface interface {
	ReplaceChatList(html template.HTML)
	ReplaceHeader(html template.HTML)
	ReplaceMessages(html template.HTML)
	AppendMessages(html template.HTML)
	ShowDialog(html template.HTML)
	CloseDialog()
	ClearComposer()
	// Alert reports something to the viewer without blocking the session.
	Alert(msg string)
}

type PatchOp int

const (
	OpReplaceChatList PatchOp = iota
	OpReplaceHeader
	OpReplaceMessages
	OpAppendMessages
	OpShowDialog
	OpCloseDialog
	OpClearComposer
	OpAlert
)

func (op PatchOp) String() string {
	switch op {
	case OpReplaceChatList:
		return "replace-chat-list"
	case OpReplaceHeader:
		return "replace-header"
	case OpReplaceMessages:
		return "replace-messages"
	case OpAppendMessages:
		return "append-messages"
	case OpShowDialog:
		return "show-dialog"
	case OpCloseDialog:
		return "close-dialog"
	case OpClearComposer:
		return "clear-composer"
	case OpAlert:
		return "alert"
	default:
		return "unknown"
	}
}

type Patch struct {
	Op   PatchOp
	HTML template.HTML
	Text string
}

// Recorder is a Surface that keeps every patch in order.
type Recorder struct {
	mu      sync.Mutex
	patches []Patch
}

func (r *Recorder) add(p Patch) {
	r.mu.Lock()
	r.patches = append(r.patches, p)
	r.mu.Unlock()
}

func (r *Recorder) ReplaceChatList(h template.HTML) { r.add(Patch{Op: OpReplaceChatList, HTML: h}) }
func (r *Recorder) ReplaceHeader(h template.HTML)   { r.add(Patch{Op: OpReplaceHeader, HTML: h}) }
func (r *Recorder) ReplaceMessages(h template.HTML) { r.add(Patch{Op: OpReplaceMessages, HTML: h}) }
func (r *Recorder) AppendMessages(h template.HTML)  { r.add(Patch{Op: OpAppendMessages, HTML: h}) }
func (r *Recorder) ShowDialog(h template.HTML)      { r.add(Patch{Op: OpShowDialog, HTML: h}) }
func (r *Recorder) CloseDialog()                    { r.add(Patch{Op: OpCloseDialog}) }
func (r *Recorder) ClearComposer()                  { r.add(Patch{Op: OpClearComposer}) }
func (r *Recorder) Alert(msg string)                { r.add(Patch{Op: OpAlert, Text: msg}) }

func (r *Recorder) Patches() []Patch {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Patch, len(r.patches))
	copy(out, r.patches)
	return out
}

// Find returns the last patch with the given op.
func (r *Recorder) Find(op PatchOp) (Patch, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.patches) - 1; i >= 0; i-- {
		if r.patches[i].Op == op {
			return r.patches[i], true
		}
	}
	return Patch{}, false
}

func (r *Recorder) Has(op PatchOp) bool {
	_, ok := r.Find(op)
	return ok
}
