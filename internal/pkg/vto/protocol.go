package vto

import (
	"bytes"
	"crypto/md5"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
)

const (
	headerSize = 32

	headerMagic1 = 0x20000000
	headerMagic2 = 0x44484950 // "DHIP"

	requestMagic = "0x1234"
)

const (
	methodLogin         = "global.login"
	methodKeepAlive     = "global.keepAlive"
	methodAttach        = "eventManager.attach"
	methodGetConfig     = "configManager.getConfig"
	methodSoftwareVer   = "magicBox.getSoftwareVersion"
	methodDeviceType    = "magicBox.getDeviceType"
	methodRunCmd        = "console.runCmd"
	methodNotifyEvents  = "client.notifyEventStream"
	loginChallengeError = "Component error: login challenge!"
)

// request is the JSON body of an outgoing frame.  Field order is the order
// the device documentation shows.
type request struct {
	ID      int                    `json:"id"`
	Session int64                  `json:"session"`
	Magic   string                 `json:"magic"`
	Method  string                 `json:"method"`
	Params  map[string]interface{} `json:"params"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// message is any JSON object received from the device
type message struct {
	ID      int             `json:"id"`
	Session int64           `json:"session"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
	Error   *rpcError       `json:"error"`
	Result  json.RawMessage `json:"result"`
}

func (m *message) decodeParams(v interface{}) error {
	if len(m.Params) == 0 || string(m.Params) == "null" {
		return nil
	}
	return json.Unmarshal(m.Params, v)
}

// encodeFrame prefixes the payload with the 32 byte DHIP header
func encodeFrame(payload []byte) []byte {
	frame := make([]byte, headerSize+len(payload))

	binary.BigEndian.PutUint32(frame[0:], headerMagic1)
	binary.BigEndian.PutUint32(frame[4:], headerMagic2)
	// bytes 8-15 are a big-endian float64 zero
	binary.LittleEndian.PutUint32(frame[16:], uint32(len(payload)))
	binary.LittleEndian.PutUint32(frame[24:], uint32(len(payload)))
	copy(frame[headerSize:], payload)

	return frame
}

func encodeRequest(r request) ([]byte, error) {
	if r.Params == nil {
		r.Params = map[string]interface{}{}
	}

	payload, err := json.MarshalIndent(r, "", "    ")
	if err != nil {
		return nil, err
	}

	return encodeFrame(payload), nil
}

func md5Upper(s string) string {
	sum := md5.Sum([]byte(s))
	return strings.ToUpper(hex.EncodeToString(sum[:]))
}

// hashPassword answers a login challenge
func hashPassword(random, realm, username, password string) string {
	passwordHash := md5Upper(fmt.Sprintf("%s:%s:%s", username, realm, password))
	return md5Upper(fmt.Sprintf("%s:%s:%s", username, random, passwordHash))
}

// extractJSONObjects finds every JSON object embedded in data, skipping any
// binary framing or garbage around them
func extractJSONObjects(data []byte) []json.RawMessage {
	var objects []json.RawMessage

	pos := 0
	for pos < len(data) {
		idx := bytes.IndexByte(data[pos:], '{')
		if idx < 0 {
			break
		}
		start := pos + idx

		dec := json.NewDecoder(bytes.NewReader(data[start:]))
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			pos = start + 1
			continue
		}

		objects = append(objects, raw)
		pos = start + int(dec.InputOffset())
	}

	return objects
}

// parsePacket decodes the messages carried by one newline-terminated packet
func parsePacket(packet []byte) []*message {
	var messages []*message

	for _, raw := range extractJSONObjects(packet) {
		m := &message{}
		if err := json.Unmarshal(raw, m); err != nil {
			continue
		}
		messages = append(messages, m)
	}

	return messages
}
