package logger

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"
)

var (
	advisorMu     sync.Mutex
	advisorOut    io.Writer
	advisorDumpRq bool
)

// SetAdvisorWriter 设置顾问请求/响应的独立落盘位置，nil 表示关闭。
func SetAdvisorWriter(w io.Writer) {
	advisorMu.Lock()
	defer advisorMu.Unlock()
	advisorOut = w
}

// EnableAdvisorPayloadDump 控制是否记录完整请求体。
func EnableAdvisorPayloadDump(enabled bool) {
	advisorMu.Lock()
	advisorDumpRq = enabled
	advisorMu.Unlock()
}

type advisorSection struct {
	Title string
	Body  string
}

func writeAdvisor(kind, sessionID string, sections []advisorSection) {
	advisorMu.Lock()
	defer advisorMu.Unlock()
	if advisorOut == nil {
		return
	}
	var b strings.Builder
	b.WriteString(time.Now().Format(time.RFC3339))
	b.WriteString(" [ADVISOR][")
	b.WriteString(kind)
	b.WriteString("]")
	if sessionID != "" {
		b.WriteString("[")
		b.WriteString(sessionID)
		b.WriteString("]")
	}
	b.WriteString("\n")
	for _, sec := range sections {
		t := strings.TrimSpace(sec.Title)
		if t == "" {
			t = "CONTENT"
		}
		fmt.Fprintf(&b, "--- %s ---\n", t)
		b.WriteString(sec.Body)
		if !strings.HasSuffix(sec.Body, "\n") {
			b.WriteString("\n")
		}
	}
	b.WriteString("=====\n")
	_, _ = io.WriteString(advisorOut, b.String())
}

func LogAdvisorRequest(sessionID, systemPrompt, userPrompt, payload string) {
	sections := []advisorSection{
		{Title: "SYSTEM", Body: systemPrompt},
		{Title: "USER", Body: userPrompt},
	}
	advisorMu.Lock()
	dump := advisorDumpRq
	advisorMu.Unlock()
	if dump && strings.TrimSpace(payload) != "" {
		sections = append(sections, advisorSection{Title: "PAYLOAD", Body: payload})
	}
	writeAdvisor("request", sessionID, sections)
}

func LogAdvisorResponse(sessionID, raw string) {
	writeAdvisor("response", sessionID, []advisorSection{{Title: "RAW", Body: raw}})
}
