package mqtt

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// TopicPrefix is the root of every dcsense topic.
const TopicPrefix = "dcsense"

// ErrTopicMismatch is returned when a topic does not match a subscription filter.
var ErrTopicMismatch = errors.New("mqtt: topic does not match filter")

// Topics provides builders for dcsense MQTT topics.
//
//	topics := mqtt.Topics{}
//	topics.ControllerReadings(7) // "dcsense/controller/7/readings"
type Topics struct{}

// ControllerReadings is where a controller publishes reading batches.
func (Topics) ControllerReadings(controllerID int64) string {
	return fmt.Sprintf("%s/controller/%d/readings", TopicPrefix, controllerID)
}

// ControllerPromoted carries an event each time a controller's batch is
// promoted to the production tier.
func (Topics) ControllerPromoted(controllerID int64) string {
	return fmt.Sprintf("%s/controller/%d/promoted", TopicPrefix, controllerID)
}

// AllControllerReadings matches every controller's readings topic.
func (Topics) AllControllerReadings() string {
	return TopicPrefix + "/controller/+/readings"
}

// SystemStatus carries the retained online/offline status of the server.
func (Topics) SystemStatus() string {
	return TopicPrefix + "/system/status"
}

// ControllerIDFromTopic extracts the controller ID from topic using filter,
// whose single "+" level marks the controller ID position.
func ControllerIDFromTopic(filter, topic string) (int64, error) {
	fl := strings.Split(filter, "/")
	tl := strings.Split(topic, "/")
	if len(fl) != len(tl) {
		return 0, fmt.Errorf("%w: %q vs %q", ErrTopicMismatch, topic, filter)
	}

	idx := -1
	for i, level := range fl {
		switch {
		case level == "+":
			if idx >= 0 {
				return 0, fmt.Errorf("%w: filter %q has more than one wildcard", ErrInvalidTopic, filter)
			}
			idx = i
		case level != tl[i]:
			return 0, fmt.Errorf("%w: %q vs %q", ErrTopicMismatch, topic, filter)
		}
	}
	if idx < 0 {
		return 0, fmt.Errorf("%w: filter %q has no wildcard", ErrInvalidTopic, filter)
	}

	id, err := strconv.ParseInt(tl[idx], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: controller id %q", ErrTopicMismatch, tl[idx])
	}
	return id, nil
}
