package websocket

import (
	"github.com/bytedance/sonic"
)

const (
	MethodSubscribe   = "SUBSCRIBE"
	MethodUnsubscribe = "UNSUBSCRIBE"
)

// ControlFrame is a subscribe/unsubscribe request.
type ControlFrame struct {
	Method string   `json:"method"`
	Params []string `json:"params"`
	ID     uint64   `json:"id"`
}

// ControlResult is the venue's reply to a ControlFrame.
type ControlResult struct {
	Result any    `json:"result"`
	ID     uint64 `json:"id"`
}

func encodeControl(method string, params []string, id uint64) ([]byte, error) {
	return sonic.Marshal(ControlFrame{Method: method, Params: params, ID: id})
}

// Paginate splits items into consecutive pages of at most size elements.
func Paginate[T any](items []T, size int) [][]T {
	if len(items) == 0 {
		return nil
	}
	if size <= 0 {
		size = len(items)
	}
	pages := make([][]T, 0, (len(items)+size-1)/size)
	for start := 0; start < len(items); start += size {
		end := min(start+size, len(items))
		pages = append(pages, items[start:end])
	}
	return pages
}
