package web

import (
	"bytes"
	"encoding/json"
	"html/template"
	"net/http"
	"strings"

	"go-chat-web/internal/chat"
)

const (
	EventAlert         = "chat:alert"
	EventClearComposer = "chat:clear-composer"
)

type target struct {
	id   string
	swap string
}

func targetOf(op chat.PatchOp) (target, bool) {
	switch op {
	case chat.OpReplaceChatList:
		return target{"chatList", "innerHTML"}, true
	case chat.OpReplaceHeader:
		return target{"chatHeader", "innerHTML"}, true
	case chat.OpReplaceMessages:
		return target{"messagesContainer", "innerHTML"}, true
	case chat.OpAppendMessages:
		return target{"messagesContainer", "beforeend"}, true
	case chat.OpShowDialog, chat.OpCloseDialog:
		return target{"dialogs", "innerHTML"}, true
	}
	return target{}, false
}

// writeOOB wraps p so htmx swaps it into its element wherever it arrives.
func writeOOB(buf *bytes.Buffer, p chat.Patch) {
	t, ok := targetOf(p.Op)
	if !ok {
		if p.Op == chat.OpAlert {
			buf.WriteString(`<div id="alerts" hx-swap-oob="beforeend"><div class="alert alert-info" role="alert">`)
			buf.WriteString(template.HTMLEscapeString(p.Text))
			buf.WriteString(`</div></div>`)
		}
		return
	}
	buf.WriteString(`<div id="` + t.id + `" hx-swap-oob="` + t.swap + `">`)
	buf.WriteString(string(p.HTML))
	buf.WriteString(`</div>`)
}

// writeFragment answers an htmx request with what the session produced. A
// single swap goes through HX-Retarget/HX-Reswap; several go out of band.
// Alerts and composer clearing travel as HX-Trigger events.
func writeFragment(w http.ResponseWriter, status int, patches []chat.Patch) {
	var swaps []chat.Patch
	var alerts []string
	clearComposer := false
	for _, p := range patches {
		switch p.Op {
		case chat.OpAlert:
			alerts = append(alerts, p.Text)
		case chat.OpClearComposer:
			clearComposer = true
		default:
			swaps = append(swaps, p)
		}
	}

	triggers := map[string]interface{}{}
	if len(alerts) > 0 {
		triggers[EventAlert] = map[string]string{"message": strings.Join(alerts, "\n")}
	}
	if clearComposer {
		triggers[EventClearComposer] = true
	}
	if len(triggers) > 0 {
		b, _ := json.Marshal(triggers)
		w.Header().Set("HX-Trigger", string(b))
	}

	if len(swaps) == 0 {
		if status == http.StatusOK {
			status = http.StatusNoContent
		}
		w.Header().Set("HX-Reswap", "none")
		w.WriteHeader(status)
		return
	}

	var body bytes.Buffer
	if len(swaps) == 1 {
		t, _ := targetOf(swaps[0].Op)
		w.Header().Set("HX-Retarget", "#"+t.id)
		w.Header().Set("HX-Reswap", t.swap)
		body.WriteString(string(swaps[0].HTML))
	} else {
		w.Header().Set("HX-Reswap", "none")
		for _, p := range swaps {
			writeOOB(&body, p)
		}
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	w.Write(body.Bytes())
}
