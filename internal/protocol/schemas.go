package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"

	ijs "github.com/invopop/jsonschema"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

var messageTypes = map[string]any{
	"hello":   new(HelloMsg),
	"welcome": new(WelcomeMsg),
	"input":   new(InputMsg),
	"ack":     new(AckMsg),
	"event":   new(EventMsg),
	"state":   new(StateMsg),
	"error":   new(ErrorMsg),
}

// SchemaNames lists the message schemas in a stable order.
func SchemaNames() []string {
	out := make([]string, 0, len(messageTypes))
	for n := range messageTypes {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Schema reflects the JSON schema of one message, by lower-case name.
// Every field without omitempty is required.
func Schema(name string) (*ijs.Schema, error) {
	v, ok := messageTypes[name]
	if !ok {
		return nil, fmt.Errorf("unknown message schema %q", name)
	}
	r := ijs.Reflector{DoNotReference: true}
	s := r.Reflect(v)
	s.Title = "voxelpush " + name + " message"
	return s, nil
}

func schemaURL(name string) string {
	return "https://voxelpush.ai/schemas/" + name + ".schema.json"
}

// SchemaJSON is the indented schema document written by cmd/schema.
func SchemaJSON(name string) ([]byte, error) {
	s, err := Schema(name)
	if err != nil {
		return nil, err
	}
	return json.MarshalIndent(s, "", "  ")
}

// Compile turns a reflected schema into a validator.
func Compile(name string) (*jsonschema.Schema, error) {
	raw, err := SchemaJSON(name)
	if err != nil {
		return nil, err
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource(schemaURL(name), bytes.NewReader(raw)); err != nil {
		return nil, fmt.Errorf("add %s schema: %w", name, err)
	}
	s, err := c.Compile(schemaURL(name))
	if err != nil {
		return nil, fmt.Errorf("compile %s schema: %w", name, err)
	}
	return s, nil
}
