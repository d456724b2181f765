package notification

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"
)

var ErrNotConfigured = errors.New("push client not configured")

type JPushConfig struct {
	AppKey       string
	MasterSecret string
}

// JPushClient is the provider transport; production wires the vendor SDK here.
type JPushClient interface {
	Push(ctx context.Context, title, content string, audience map[string]interface{}, extras map[string]interface{}) error
}

type JPush struct {
	cfg JPushConfig
	cli JPushClient
}

func NewJPush(cfg JPushConfig, cli JPushClient) *JPush { return &JPush{cfg: cfg, cli: cli} }

func (j *JPush) Configured() bool { return j != nil && j.cli != nil }

func (j *JPush) PushToAlias(ctx context.Context, alias []string, title, content string, extras map[string]interface{}) error {
	return j.push(ctx, map[string]interface{}{"alias": alias}, title, content, extras)
}

// PushToTag targets devices tagged with a role or driver group.
func (j *JPush) PushToTag(ctx context.Context, tags []string, title, content string, extras map[string]interface{}) error {
	return j.push(ctx, map[string]interface{}{"tag": tags}, title, content, extras)
}

func (j *JPush) PushToAll(ctx context.Context, title, content string, extras map[string]interface{}) error {
	return j.push(ctx, map[string]interface{}{"all": true}, title, content, extras)
}

func (j *JPush) push(ctx context.Context, aud map[string]interface{}, title, content string, extras map[string]interface{}) error {
	if !j.Configured() {
		return ErrNotConfigured
	}
	return j.cli.Push(ctx, title, content, aud, extras)
}

// DryRunClient logs pushes instead of sending them.
type DryRunClient struct{}

func (DryRunClient) Push(_ context.Context, title, content string, audience map[string]interface{}, extras map[string]interface{}) error {
	logrus.WithFields(logrus.Fields{"audience": audience, "extras": extras}).Infof("push (dry run): %s: %s", title, content)
	return nil
}
