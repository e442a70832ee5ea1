package errors

import "fmt"

var (
	ErrUpsertUser    = fmt.Errorf("user upsert failed")
	ErrAppendMessage = fmt.Errorf("message append failed")
	ErrClosed        = fmt.Errorf("connection is closed")
	ErrSlowConsumer  = fmt.Errorf("send queue full")
)
