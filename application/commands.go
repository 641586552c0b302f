package application

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

const (
	TopicLight = "LightsHome"
	TopicLED   = "Led"
	TopicColor = "color"

	LightOn  = "On"
	LightOff = "Off"
)

var (
	ErrMalformedCommand = fmt.Errorf("malformed command")
	ErrInvalidColor     = fmt.Errorf("invalid color")
)

var (
	commandPattern = regexp.MustCompile(`^([A-Za-z_]\w*)/(\d+)$`)
	colorPattern   = regexp.MustCompile(`^#[0-9a-fA-F]{6}$`)
)

// Command is a combined command and target id, written as "<word>/<integer>".
type Command struct {
	Name string
	ID   int
}

func ParseCommand(s string) (Command, error) {
	match := commandPattern.FindStringSubmatch(strings.TrimSpace(s))
	if match == nil {
		return Command{}, fmt.Errorf("%w: %q", ErrMalformedCommand, s)
	}

	id, err := strconv.Atoi(match[2])
	if err != nil {
		return Command{}, fmt.Errorf("%w: %q: %v", ErrMalformedCommand, s, err)
	}
	return Command{Name: match[1], ID: id}, nil
}

func (c Command) String() string {
	return fmt.Sprintf("%s/%d", c.Name, c.ID)
}

// ControlService sends device commands through the shared messaging client.
type ControlService struct {
	client MQTTClient
}

func NewControlService(client MQTTClient) (*ControlService, error) {
	if client == nil {
		return nil, fmt.Errorf("MQTTClient is nil")
	}
	return &ControlService{client: client}, nil
}

func (c *ControlService) SetLight(on bool) {
	payload := LightOff
	if on {
		payload = LightOn
	}
	c.client.Publish(TopicLight, payload)
}

func (c *ControlService) SelectLED(id int) error {
	if id < 0 {
		return fmt.Errorf("led id must not be negative: %d", id)
	}
	c.client.Publish(TopicLED, strconv.Itoa(id))
	return nil
}

func (c *ControlService) SetColor(hex string) error {
	if !colorPattern.MatchString(hex) {
		return fmt.Errorf("%w: %q, expected #rrggbb", ErrInvalidColor, hex)
	}
	c.client.Publish(TopicColor, strings.ToLower(hex))
	return nil
}
