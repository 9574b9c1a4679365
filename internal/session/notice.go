package session

import (
	"time"

	"github.com/Lllllllleong/pdfannotator/internal/models"
)

const (
	LevelSuccess = "success"
	LevelInfo    = "info"
	LevelWarning = "warning"
	LevelError   = "error"
)

// NoticeTTL is how long a notice stays visible before it is dismissed.
const NoticeTTL = 3 * time.Second

type notice struct {
	models.Notice
	expiresAt time.Time
}

func (s *Session) notify(level, message string) {
	s.notices = append(s.notices, notice{
		Notice:    models.Notice{Level: level, Message: message},
		expiresAt: s.now().Add(NoticeTTL),
	})
}

// drainNotices returns the notices that are still visible and forgets all of them.
func (s *Session) drainNotices() []models.Notice {
	now := s.now()
	var out []models.Notice
	for _, n := range s.notices {
		if now.Before(n.expiresAt) {
			out = append(out, n.Notice)
		}
	}
	s.notices = nil
	return out
}
