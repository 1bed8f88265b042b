package persistence

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// SaveSession writes the session to sessionFile, replacing it atomically.
func SaveSession(sessionFile string, session *Session) error {
	data, err := yaml.Marshal(session)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(sessionFile), filepath.Base(sessionFile)+".*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err = tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err = tmp.Chmod(0640); err != nil {
		tmp.Close()
		return err
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), sessionFile)
}

// TryToResumeSession reads a saved session. A missing file yields an empty
// session.
func TryToResumeSession(sessionFile string) (*Session, error) {
	data, err := os.ReadFile(sessionFile)
	if errors.Is(err, fs.ErrNotExist) {
		return &Session{}, nil
	}
	if err != nil {
		return nil, err
	}

	var session Session
	if err = yaml.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("decode session %s: %w", sessionFile, err)
	}
	return &session, nil
}
