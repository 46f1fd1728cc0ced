package indicator

import (
	"os"
	"strings"
)

type locale string

const (
	localeEnglish locale = "en"
)

type messages struct {
	recording string
	thinking  string
	notices   map[NoticeKind]string
}

func indicatorMessagesFromEnv() messages {
	return indicatorMessages(resolveLocale(os.Getenv("LANG")))
}

func resolveLocale(raw string) locale {
	raw = strings.ToLower(strings.TrimSpace(raw))
	if strings.HasPrefix(raw, "en") {
		return localeEnglish
	}
	return localeEnglish
}

func indicatorMessages(tag locale) messages {
	switch tag {
	case localeEnglish:
		fallthrough
	default:
		return messages{
			recording: "Listening…",
			thinking:  "Thinking…",
			notices: map[NoticeKind]string{
				NoticeInitializationRequired: "Inference service is not initialized",
				NoticeInitializationFailed:   "Inference service initialization failed",
				NoticeEmptyAudio:             "No audio was captured",
				NoticeCaptureFailed:          "Microphone unavailable",
				NoticeNoVerbalResponse:       "No verbal response",
				NoticeFallback:               "Inference service unavailable",
				NoticeConfiguration:          "Configuration error",
			},
		}
	}
}

// title returns the localized summary line for kind.
func (m messages) title(kind NoticeKind) string {
	if text, ok := m.notices[kind]; ok {
		return text
	}
	return "fala"
}
