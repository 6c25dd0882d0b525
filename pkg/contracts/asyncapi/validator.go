package asyncapi

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"gopkg.in/yaml.v3"

	"github.com/rental-platform/rental-service/pkg/cloudevents"
)

//go:embed specs/rental-events.yaml
var rentalEvents []byte

const resourceURL = "https://contracts.rental.local/asyncapi/rental-events.json"

// EventValidator validates CloudEvents against AsyncAPI message payloads.
type EventValidator struct {
	schemas  map[string]*jsonschema.Schema
	channels map[string]string
}

// CloudEvent represents the CloudEvents specification structure.
type CloudEvent struct {
	SpecVersion     string      `json:"specversion"`
	Type            string      `json:"type"`
	Source          string      `json:"source"`
	Subject         string      `json:"subject,omitempty"`
	ID              string      `json:"id"`
	Time            string      `json:"time,omitempty"`
	DataContentType string      `json:"datacontenttype,omitempty"`
	Data            interface{} `json:"data,omitempty"`
}

// AsyncAPISpec represents the relevant parts of an AsyncAPI specification.
type AsyncAPISpec struct {
	AsyncAPI   string                     `yaml:"asyncapi"`
	Info       AsyncAPIInfo               `yaml:"info"`
	Channels   map[string]AsyncAPIChannel `yaml:"channels"`
	Components AsyncAPIComponents         `yaml:"components"`
}

// AsyncAPIInfo contains AsyncAPI info section.
type AsyncAPIInfo struct {
	Title   string `yaml:"title"`
	Version string `yaml:"version"`
}

// AsyncAPIChannel represents a channel in AsyncAPI.
type AsyncAPIChannel struct {
	Address  string                        `yaml:"address"`
	Messages map[string]AsyncAPIMessageRef `yaml:"messages"`
}

// AsyncAPIMessageRef points a channel message at a component message.
type AsyncAPIMessageRef struct {
	Ref string `yaml:"$ref"`
}

// AsyncAPIMessage is a component message. Its name is the CloudEvent type.
type AsyncAPIMessage struct {
	Name    string      `yaml:"name"`
	Payload interface{} `yaml:"payload"`
}

// AsyncAPIComponents contains reusable components.
type AsyncAPIComponents struct {
	Schemas  map[string]interface{}     `yaml:"schemas"`
	Messages map[string]AsyncAPIMessage `yaml:"messages"`
}

// New returns a validator for the embedded rental event contract.
func New() (*EventValidator, error) {
	return NewEventValidatorFromBytes(rentalEvents)
}

// Document returns the embedded AsyncAPI document.
func Document() []byte {
	return rentalEvents
}

// NewEventValidatorFromBytes creates a new event validator from AsyncAPI specification bytes.
// Every component message must carry a name and a payload that compiles.
func NewEventValidatorFromBytes(specBytes []byte) (*EventValidator, error) {
	var spec AsyncAPISpec
	if err := yaml.Unmarshal(specBytes, &spec); err != nil {
		return nil, fmt.Errorf("failed to parse AsyncAPI spec: %w", err)
	}

	// The components block is re-encoded as JSON so that payload refs of the
	// form #/components/schemas/X resolve inside a single resource.
	var raw struct {
		Components map[string]interface{} `yaml:"components"`
	}
	if err := yaml.Unmarshal(specBytes, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse AsyncAPI components: %w", err)
	}
	resourceJSON, err := json.Marshal(map[string]interface{}{"components": raw.Components})
	if err != nil {
		return nil, fmt.Errorf("failed to encode AsyncAPI components: %w", err)
	}
	resource, err := jsonschema.UnmarshalJSON(bytes.NewReader(resourceJSON))
	if err != nil {
		return nil, fmt.Errorf("failed to decode AsyncAPI components: %w", err)
	}

	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(resourceURL, resource); err != nil {
		return nil, fmt.Errorf("failed to add AsyncAPI resource: %w", err)
	}

	v := &EventValidator{
		schemas:  make(map[string]*jsonschema.Schema),
		channels: make(map[string]string),
	}

	for key, message := range spec.Components.Messages {
		if message.Name == "" || message.Payload == nil {
			return nil, fmt.Errorf("message %s needs a name and a payload", key)
		}
		compiled, err := compiler.Compile(fmt.Sprintf("%s#/components/messages/%s/payload", resourceURL, key))
		if err != nil {
			return nil, fmt.Errorf("failed to compile payload of %s: %w", key, err)
		}
		v.schemas[message.Name] = compiled
	}

	for _, channel := range spec.Channels {
		for _, ref := range channel.Messages {
			message, ok := spec.Components.Messages[lastSegment(ref.Ref)]
			if !ok {
				return nil, fmt.Errorf("channel %s references unknown message %s", channel.Address, ref.Ref)
			}
			v.channels[message.Name] = channel.Address
		}
	}

	return v, nil
}

// ValidateEvent validates a CloudEvent envelope and its data.
func (v *EventValidator) ValidateEvent(event CloudEvent) error {
	if event.Type == "" {
		return fmt.Errorf("event type is required")
	}
	if event.SpecVersion != "1.0" {
		return fmt.Errorf("unsupported specversion %q", event.SpecVersion)
	}
	if event.ID == "" || event.Source == "" {
		return fmt.Errorf("event id and source are required")
	}

	schema, ok := v.schemas[event.Type]
	if !ok {
		return fmt.Errorf("no schema found for event type: %s", event.Type)
	}

	if event.Data == nil {
		return fmt.Errorf("event data is required")
	}

	// Round trip through JSON so typed payloads validate as their wire form
	dataJSON, err := json.Marshal(event.Data)
	if err != nil {
		return fmt.Errorf("failed to marshal event data: %w", err)
	}

	data, err := jsonschema.UnmarshalJSON(bytes.NewReader(dataJSON))
	if err != nil {
		return fmt.Errorf("failed to unmarshal event data: %w", err)
	}

	if err := schema.Validate(data); err != nil {
		return fmt.Errorf("event data validation failed for type %s: %w", event.Type, err)
	}

	return nil
}

// ValidateRentalEvent validates an event built by the cloudevents factory.
func (v *EventValidator) ValidateRentalEvent(event *cloudevents.RentalCloudEvent) error {
	raw, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal CloudEvent: %w", err)
	}
	return v.ValidateEventJSON(raw)
}

// ValidateEventJSON validates a CloudEvent from JSON bytes.
func (v *EventValidator) ValidateEventJSON(eventJSON []byte) error {
	var event CloudEvent
	if err := json.Unmarshal(eventJSON, &event); err != nil {
		return fmt.Errorf("failed to parse CloudEvent: %w", err)
	}
	return v.ValidateEvent(event)
}

// GetSupportedEventTypes returns all event types that have registered schemas, sorted.
func (v *EventValidator) GetSupportedEventTypes() []string {
	types := make([]string, 0, len(v.schemas))
	for eventType := range v.schemas {
		types = append(types, eventType)
	}
	sort.Strings(types)
	return types
}

// HasSchema checks if a schema exists for the given event type.
func (v *EventValidator) HasSchema(eventType string) bool {
	_, ok := v.schemas[eventType]
	return ok
}

// ChannelFor returns the Kafka topic an event type is published on.
func (v *EventValidator) ChannelFor(eventType string) (string, bool) {
	address, ok := v.channels[eventType]
	return address, ok
}

func lastSegment(ref string) string {
	for i := len(ref) - 1; i >= 0; i-- {
		if ref[i] == '/' {
			return ref[i+1:]
		}
	}
	return ref
}
