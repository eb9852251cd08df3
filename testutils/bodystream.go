package testutils

import "bytes"

// BodyWriter is the shape of the streaming body writers of an evaluation.
type BodyWriter func(chunk []byte, eos bool) error

// StreamBody feeds content to write in chunks of at most chunkSize bytes. Only the last chunk is flagged as the end of stream.
// An empty content is written as a single empty end of stream chunk.
func StreamBody(write BodyWriter, content []byte, chunkSize int) error {
	if chunkSize <= 0 {
		chunkSize = len(content)
	}

	for {
		n := chunkSize
		if n > len(content) {
			n = len(content)
		}
		eos := n == len(content)
		if err := write(content[:n], eos); err != nil {
			return err
		}
		if eos {
			return nil
		}
		content = content[n:]
	}
}

// RepeatedBody returns exactly n bytes made of copies of pattern, the last copy cut short if needed.
func RepeatedBody(pattern string, n int) []byte {
	if pattern == "" || n <= 0 {
		return []byte{}
	}
	bb := bytes.Repeat([]byte(pattern), n/len(pattern)+1)
	return bb[:n]
}
