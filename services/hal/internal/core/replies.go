package core

import (
	"bmscode-go/bus"
	"bmscode-go/errcode"
	"bmscode-go/types"
)

func (h *HAL) replyOK(m *bus.Message) {
	if m.CanReply() {
		h.conn.Reply(m, types.OKReply{OK: true}, false)
	}
}

func (h *HAL) replyErr(m *bus.Message, code errcode.Code) {
	if !m.CanReply() {
		return
	}
	if code == "" {
		code = errcode.Error
	}
	h.conn.Reply(m, types.ErrorReply{OK: false, Error: string(code)}, false)
}

// replyFromError maps err to its code; driver sentinels keep their meaning.
func (h *HAL) replyFromError(m *bus.Message, err error) {
	h.replyErr(m, errcode.MapDriverErr(err))
}
