package pipeline

// RawWriter writes raw queue payloads for replay.
type RawWriter interface {
	WriteRawMessages(messages [][]byte) error
	Close() error
}
