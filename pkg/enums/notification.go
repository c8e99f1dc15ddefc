package enums

import "fmt"

// NotificationType tags the event a notification describes.
type NotificationType string

const (
	NotificationTypeInfo             NotificationType = "info"
	NotificationTypeProposalStatus   NotificationType = "proposal_status"
	NotificationTypeFileUploaded     NotificationType = "file_uploaded"
	NotificationTypeDeadlineReminder NotificationType = "deadline_reminder"
	NotificationTypeCommentAdded     NotificationType = "comment_added"
	NotificationTypeSystem           NotificationType = "system_announcement"
)

var validNotificationTypes = []NotificationType{
	NotificationTypeInfo,
	NotificationTypeProposalStatus,
	NotificationTypeFileUploaded,
	NotificationTypeDeadlineReminder,
	NotificationTypeCommentAdded,
	NotificationTypeSystem,
}

// IsValid checks whether the given type matches the canonical enum.
func (n NotificationType) IsValid() bool {
	for _, candidate := range validNotificationTypes {
		if candidate == n {
			return true
		}
	}
	return false
}

// ParseNotificationType converts raw strings into NotificationType.
func ParseNotificationType(value string) (NotificationType, error) {
	for _, candidate := range validNotificationTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid notification type %q", value)
}

// NotificationPriority orders notifications for batching decisions.
type NotificationPriority string

const (
	PriorityLow      NotificationPriority = "low"
	PriorityMedium   NotificationPriority = "medium"
	PriorityHigh     NotificationPriority = "high"
	PriorityCritical NotificationPriority = "critical"
)

var priorityWeights = map[NotificationPriority]int{
	PriorityLow:      0,
	PriorityMedium:   1,
	PriorityHigh:     2,
	PriorityCritical: 3,
}

// IsValid checks whether the priority is one of the canonical values.
func (p NotificationPriority) IsValid() bool {
	_, ok := priorityWeights[p]
	return ok
}

// Weight returns the strict ordering rank (critical > high > medium > low).
func (p NotificationPriority) Weight() int {
	return priorityWeights[p]
}

// ParseNotificationPriority converts raw strings into NotificationPriority.
func ParseNotificationPriority(value string) (NotificationPriority, error) {
	p := NotificationPriority(value)
	if !p.IsValid() {
		return "", fmt.Errorf("invalid notification priority %q", value)
	}
	return p, nil
}

// DefaultNotificationCategory groups notifications that declare no category.
const DefaultNotificationCategory = "system"
