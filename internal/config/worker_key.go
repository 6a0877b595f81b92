package config

// WorkerKeyStruct names the job queues.
type WorkerKeyStruct struct {
	ResultNotificationQueue string
	WinnerListQueue         string
}

var WorkerKey = &WorkerKeyStruct{
	ResultNotificationQueue: "result_notification_queue",
	WinnerListQueue:         "winner_list_queue",
}

// DeadLetter returns the dead-letter list/queue name for a queue.
func (w *WorkerKeyStruct) DeadLetter(queue string) string {
	return queue + ":dead"
}
