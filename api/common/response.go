package common

import "time"

const TOKEN_DURATION = 12 * time.Hour

type Response struct {
	Code      int         `json:"code"`
	Msg       string      `json:"msg"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp int64       `json:"timestamp"`
}

func NewResponse() Response {
	return Response{Timestamp: time.Now().Unix()}
}
