package student

import (
	"net/mail"

	"github.com/trezcool/shule/core"
)

// email templates
const (
	tmplEnrollment  = "enrollment"
	tmplWithdrawal  = "withdrawal"
	tmplRestoration = "restoration"
	tmplTransfer    = "transfer"
)

var subjects = map[string]string{
	tmplEnrollment:  "Enrollment confirmation",
	tmplWithdrawal:  "Withdrawal notice",
	tmplRestoration: "Re-admission notice",
	tmplTransfer:    "Transfer notice",
}

type notificationData struct {
	GuardianName  string
	StudentName   string
	StudentID     string
	ClassroomName string
	Reason        string
}

// notify emails the student's guardian about a committed lifecycle change.
// Sending happens in the background and never fails the operation.
func (svc *Service) notify(s Student, tmpl, classroomName, reason string) {
	if svc.mailer == nil {
		return
	}
	if s.GuardianInfo.Email == "" {
		svc.logger.Warn("student " + s.StudentID + " has no guardian email, skipping " + tmpl + " notice")
		return
	}
	svc.mailer.SendMessages(&core.EmailMessage{
		To:           []mail.Address{{Name: s.GuardianInfo.GuardianName, Address: s.GuardianInfo.Email}},
		Subject:      subjects[tmpl],
		TemplateName: tmpl,
		TemplateData: notificationData{
			GuardianName:  s.GuardianInfo.GuardianName,
			StudentName:   s.FullName(),
			StudentID:     s.StudentID,
			ClassroomName: classroomName,
			Reason:        reason,
		},
	})
}
