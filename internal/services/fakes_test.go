package services

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/yoockh/vibematch/internal/models"
	"github.com/yoockh/vibematch/internal/providers/llm"
)

var errProvider = errors.New("provider down")

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

type fakeChat struct {
	mu    sync.Mutex
	reply string
	err   error
	block bool // wait for ctx instead of replying
	calls int
	last  llm.ChatRequest
}

func (f *fakeChat) CompleteChat(ctx context.Context, req llm.ChatRequest) (string, error) {
	f.mu.Lock()
	f.calls++
	f.last = req
	block, reply, err := f.block, f.reply, f.err
	f.mu.Unlock()

	if block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	return reply, err
}

func (f *fakeChat) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// fakeEmbedder returns vectors from a table keyed by exact text, or def.
type fakeEmbedder struct {
	mu    sync.Mutex
	table map[string][]float32
	def   []float32
	err   error
	calls int
	texts []string
}

func (f *fakeEmbedder) EmbedText(_ context.Context, text string) ([]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.texts = append(f.texts, text)
	if f.err != nil {
		return nil, f.err
	}
	if v, ok := f.table[text]; ok {
		return v, nil
	}
	return f.def, nil
}

func (f *fakeEmbedder) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeUploader struct {
	objects map[string][]byte
	err     error
}

func (u *fakeUploader) Upload(_ context.Context, objectName, _ string, r io.Reader) (string, error) {
	if u.err != nil {
		return "", u.err
	}
	b, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	if u.objects == nil {
		u.objects = map[string][]byte{}
	}
	u.objects[objectName] = b
	return "gs://test/" + objectName, nil
}

func parsedProfile(id int, name, activity, interests, country string) *models.Profile {
	p := &models.Profile{ID: id, Name: name, Bio: name + " bio"}
	p.Parsed = models.ParsedFields{
		ShortBio:     name + " short",
		MainActivity: activity,
		Interests:    interests,
		Country:      country,
	}
	return p
}
