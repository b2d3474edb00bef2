package v1

// ---- Inbound payloads ----

// AttendanceMarkedPayload is sent by a teacher to set one student's status.
type AttendanceMarkedPayload struct {
	ClassID   string `json:"classId"`
	StudentID string `json:"studentId"`
	Status    string `json:"status"`
}

// ClassPayload carries only a class id (TODAY_SUMMARY, MY_ATTENDANCE, DONE).
type ClassPayload struct {
	ClassID string `json:"classId"`
}

// ---- Outbound payloads ----

// ConnectedPayload acknowledges an authenticated connection.
type ConnectedPayload struct {
	Message string `json:"message"`
	UserID  string `json:"userId"`
	Role    string `json:"role"`
}

// SummaryPayload is broadcast for TODAY_SUMMARY.
type SummaryPayload struct {
	ClassID string `json:"classId"`
	Present int    `json:"present"`
	Absent  int    `json:"absent"`
	Total   int    `json:"total"`
}

// MyAttendancePayload is unicast to the requesting student.
type MyAttendancePayload struct {
	ClassID string `json:"classId"`
	Status  string `json:"status"`
}

// DonePayload is broadcast once a session has been committed and cleared.
type DonePayload struct {
	ClassID   string `json:"classId"`
	SessionID string `json:"sessionId"`
	Message   string `json:"message"`
	Present   int    `json:"present"`
	Absent    int    `json:"absent"`
	Total     int    `json:"total"`
}

// ErrorPayload is the body of every ERROR frame.
type ErrorPayload struct {
	Message string `json:"message"`
}
