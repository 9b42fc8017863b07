package deepgram

import (
	"sync"

	"github.com/koscakluka/ema-campus/core/texttospeech"
)

func withMarks(mu *sync.Mutex, marks *[]string) texttospeech.TextToSpeechOption {
	return texttospeech.WithSpeechMarkCallback(func(mark string) {
		mu.Lock()
		defer mu.Unlock()
		*marks = append(*marks, mark)
	})
}

func withEnded(ended chan struct{}) texttospeech.TextToSpeechOption {
	return texttospeech.WithSpeechEndedCallback(func(texttospeech.SpeechEndedReport) { close(ended) })
}
