package indicator

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestResolveLocaleDefaultsToEnglish(t *testing.T) {
	require.Equal(t, localeEnglish, resolveLocale("en_US.UTF-8"))
	require.Equal(t, localeEnglish, resolveLocale("fr_FR.UTF-8"))
}

func TestIndicatorMessagesEnglish(t *testing.T) {
	msg := indicatorMessages(localeEnglish)
	require.Equal(t, "Listening…", msg.recording)
	require.Equal(t, "Thinking…", msg.thinking)
	require.Equal(t, "No audio was captured", msg.title(NoticeEmptyAudio))
	require.Equal(t, "No verbal response", msg.title(NoticeNoVerbalResponse))
	require.Equal(t, "fala", msg.title(NoticeKind("unknown")))
}

func TestEveryNoticeKindHasATitle(t *testing.T) {
	msg := indicatorMessages(localeEnglish)
	for _, kind := range NoticeKinds() {
		require.NotEqual(t, "fala", msg.title(kind), kind)
	}
}
