// Package telemetry decodes the robot's topic stream and caches the latest
// frame per category for each device.
package telemetry

import "sort"

// Category groups topics into the views served to callers.
type Category string

const (
	CategoryStatus  Category = "status"
	CategoryPose    Category = "pose"
	CategorySensors Category = "sensors"
	CategoryMap     Category = "map"
	CategoryVideo   Category = "video"
	CategoryLidar   Category = "lidar"
)

const (
	TopicPose       = "/tracked_pose"
	TopicBattery    = "/battery_state"
	TopicWheel      = "/wheel_state"
	TopicSlam       = "/slam/state"
	TopicJack       = "/jack_state"
	TopicAlerts     = "/alerts"
	TopicMap        = "/map"
	TopicScan       = "/scan_matched_points2"
	TopicCamera     = "/rgb_cameras/front/compressed"
	TopicIMU        = "/imu"
	TopicUltrasonic = "/ultrasonic"
)

var topicCategories = map[string]Category{
	TopicPose:       CategoryPose,
	TopicBattery:    CategoryStatus,
	TopicWheel:      CategoryStatus,
	TopicSlam:       CategoryStatus,
	TopicJack:       CategoryStatus,
	TopicAlerts:     CategoryStatus,
	TopicMap:        CategoryMap,
	TopicScan:       CategoryLidar,
	TopicCamera:     CategoryVideo,
	TopicIMU:        CategorySensors,
	TopicUltrasonic: CategorySensors,
}

// CategoryOf classifies a topic by the static topic table.
func CategoryOf(topic string) (Category, bool) {
	c, ok := topicCategories[topic]
	return c, ok
}

// AllTopics returns every topic in the table, sorted. This is the list sent
// in the enable-topics control message.
func AllTopics() []string {
	topics := make([]string, 0, len(topicCategories))
	for t := range topicCategories {
		topics = append(topics, t)
	}
	sort.Strings(topics)
	return topics
}

// Categories lists the view categories in a stable order.
func Categories() []Category {
	return []Category{CategoryStatus, CategoryPose, CategorySensors, CategoryMap, CategoryVideo, CategoryLidar}
}

// ParseCategory accepts a category name; "position" and "camera" are accepted
// as aliases for the pose and video views.
func ParseCategory(s string) (Category, bool) {
	switch s {
	case "position":
		return CategoryPose, true
	case "camera":
		return CategoryVideo, true
	}
	for _, c := range Categories() {
		if string(c) == s {
			return c, true
		}
	}
	return "", false
}
