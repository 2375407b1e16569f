package serverconfig

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/core-tools/hsu-mcservice/pkg/logging"
)

// MockSender is a mock implementation of CommandSender for testing
type MockSender struct {
	mock.Mock
}

func (m *MockSender) Send(command string) bool {
	args := m.Called(command)
	return args.Bool(0)
}

type notification struct {
	field string
	value interface{}
}

type recordingNotifier struct {
	mutex         sync.Mutex
	notifications []notification
}

func (n *recordingNotifier) Notify(field string, value interface{}) {
	n.mutex.Lock()
	defer n.mutex.Unlock()
	n.notifications = append(n.notifications, notification{field: field, value: value})
}

func (n *recordingNotifier) all() []notification {
	n.mutex.Lock()
	defer n.mutex.Unlock()
	return append([]notification(nil), n.notifications...)
}

type reconcilerFixture struct {
	paths      Paths
	sender     *MockSender
	notifier   *recordingNotifier
	reconciler *Reconciler
}

func newReconcilerFixture(t *testing.T, document string) *reconcilerFixture {
	t.Helper()

	dir := t.TempDir()
	paths := Paths{
		Config:     filepath.Join(dir, "config.yaml"),
		Properties: filepath.Join(dir, "server.properties"),
		Eula:       filepath.Join(dir, "eula.txt"),
	}
	if document != "" {
		require.NoError(t, os.WriteFile(paths.Config, []byte(document), 0644))
	}

	sender := &MockSender{}
	sender.On("Send", "reload").Return(false).Maybe()
	notifier := &recordingNotifier{}

	return &reconcilerFixture{
		paths:      paths,
		sender:     sender,
		notifier:   notifier,
		reconciler: NewReconciler(paths, sender, notifier, logging.NopLogger{}),
	}
}

func (f *reconcilerFixture) writeProperties(t *testing.T, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(f.paths.Properties, []byte(content), 0644))
}

func (f *reconcilerFixture) readProperties(t *testing.T) string {
	t.Helper()
	data, err := os.ReadFile(f.paths.Properties)
	require.NoError(t, err)
	return string(data)
}
