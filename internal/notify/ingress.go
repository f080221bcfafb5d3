package notify

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// A push event carries exactly one of the two shapes: a structured data
// payload pointing at a message, or a pre-rendered generic notification.
const pushSchema = `{
	"$schema": "https://json-schema.org/draft/2020-12/schema",
	"oneOf": [
		{
			"type": "object",
			"required": ["topic", "xfrom", "content"],
			"properties": {
				"topic": {"type": "string", "minLength": 1},
				"xfrom": {"type": "string"},
				"content": {"type": "string"}
			},
			"not": {"required": ["title"]}
		},
		{
			"type": "object",
			"required": ["title", "body"],
			"properties": {
				"title": {"type": "string"},
				"body": {"type": "string"}
			},
			"not": {"required": ["topic"]}
		}
	]
}`

var (
	pushSchemaOnce     sync.Once
	pushSchemaCompiled *jsonschema.Schema
	pushSchemaErr      error
)

func compiledPushSchema() (*jsonschema.Schema, error) {
	pushSchemaOnce.Do(func() {
		doc, err := jsonschema.UnmarshalJSON(strings.NewReader(pushSchema))
		if err != nil {
			pushSchemaErr = err
			return
		}
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource("push.json", doc); err != nil {
			pushSchemaErr = err
			return
		}
		pushSchemaCompiled, pushSchemaErr = compiler.Compile("push.json")
	})
	return pushSchemaCompiled, pushSchemaErr
}

// DataPayload points at a message delivered out of band: the topic it landed
// in, the sender, and the content to render.
type DataPayload struct {
	Topic   string `json:"topic"`
	XFrom   string `json:"xfrom"`
	Content string `json:"content"`
}

// NotificationPayload is a server-rendered generic alert shown verbatim.
type NotificationPayload struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

// PushEvent is one validated inbound push. Exactly one of Data and Note is
// set.
type PushEvent struct {
	Data *DataPayload
	Note *NotificationPayload
}

// ParsePush validates a raw push payload against the ingress schema and
// decodes it into its shape. Payloads matching neither shape, or both, are
// rejected.
func ParsePush(raw []byte) (*PushEvent, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, ErrInvalidInput
	}
	schema, err := compiledPushSchema()
	if err != nil {
		return nil, err
	}
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if err := schema.Validate(inst); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}

	fields, ok := inst.(map[string]any)
	if !ok {
		return nil, ErrInvalidPayload
	}
	if _, isData := fields["topic"]; isData {
		var data DataPayload
		if err := decodeInto(raw, &data); err != nil {
			return nil, err
		}
		return &PushEvent{Data: &data}, nil
	}
	var note NotificationPayload
	if err := decodeInto(raw, &note); err != nil {
		return nil, err
	}
	return &PushEvent{Note: &note}, nil
}

func decodeInto(raw []byte, target any) error {
	if err := json.Unmarshal(raw, target); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return nil
}
