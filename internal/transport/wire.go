// Package transport speaks the chat server's websocket protocol: one JSON
// frame per message, client requests correlated to server acknowledgements
// by id, interleaved with unsolicited topic events.
package transport

// clientFrame is the envelope for a client message. Exactly one field is
// set.
type clientFrame struct {
	Login *loginFrame `json:"login,omitempty"`
	Sub   *subFrame   `json:"sub,omitempty"`
	Leave *leaveFrame `json:"leave,omitempty"`
	Pub   *pubFrame   `json:"pub,omitempty"`
	Del   *delFrame   `json:"del,omitempty"`
	Note  *noteFrame  `json:"note,omitempty"`
}

type loginFrame struct {
	ID     string `json:"id"`
	Scheme string `json:"scheme"`
	Secret string `json:"secret"`
}

// getQuery names the server-side queries accompanying a subscription:
// a space-separated subset of "desc sub data del".
type getQuery struct {
	What string `json:"what"`
}

type subFrame struct {
	ID    string    `json:"id"`
	Topic string    `json:"topic"`
	Get   *getQuery `json:"get,omitempty"`
}

type leaveFrame struct {
	ID    string `json:"id"`
	Topic string `json:"topic"`
}

type pubFrame struct {
	ID      string `json:"id"`
	Topic   string `json:"topic"`
	Content string `json:"content"`
}

type delFrame struct {
	ID      string `json:"id"`
	Topic   string `json:"topic"`
	SeqList []int  `json:"delseq"`
}

// noteFrame is fire-and-forget, hence no id.
type noteFrame struct {
	Topic string `json:"topic"`
	What  string `json:"what"`
	Seq   int    `json:"seq,omitempty"`
}

// serverFrame is the envelope for a server message. Exactly one field is
// set.
type serverFrame struct {
	Ctrl *ctrlFrame `json:"ctrl,omitempty"`
	Data *dataFrame `json:"data,omitempty"`
	Pres *presFrame `json:"pres,omitempty"`
	Info *infoFrame `json:"info,omitempty"`
	Meta *metaFrame `json:"meta,omitempty"`
}

type ctrlFrame struct {
	ID     string         `json:"id,omitempty"`
	Topic  string         `json:"topic,omitempty"`
	Code   int            `json:"code"`
	Text   string         `json:"text,omitempty"`
	Params map[string]any `json:"params,omitempty"`
}

type dataFrame struct {
	Topic   string `json:"topic"`
	From    string `json:"from,omitempty"`
	Seq     int    `json:"seq,omitempty"`
	Content string `json:"content"`
}

type presFrame struct {
	Topic string `json:"topic"`
	Src   string `json:"src,omitempty"`
	What  string `json:"what"`
}

type infoFrame struct {
	Topic string `json:"topic"`
	From  string `json:"from,omitempty"`
	What  string `json:"what"`
	Seq   int    `json:"seq,omitempty"`
}

type descUpdate struct {
	Fn     string `json:"fn,omitempty"`
	Avatar string `json:"avatar,omitempty"`
}

type metaFrame struct {
	Topic string      `json:"topic"`
	Desc  *descUpdate `json:"desc,omitempty"`
}
