// internal/pkg/zookeeper/conn.go
package zookeeper

import (
	"time"

	"github.com/go-zookeeper/zk"
	"github.com/pkg/errors"
)

// Conn 是对 zk.Conn 的薄封装，统一会话超时和错误包装。
type Conn struct {
	*zk.Conn
}

func Connect(servers []string, sessionTimeout time.Duration) (*Conn, error) {
	conn, _, err := zk.Connect(servers, sessionTimeout)
	if err != nil {
		return nil, errors.Wrap(err, "connect zookeeper")
	}
	return &Conn{Conn: conn}, nil
}

// EnsurePath 逐级创建持久节点，节点已存在不算错误。
func (c *Conn) EnsurePath(path string) error {
	exists, _, err := c.Exists(path)
	if err != nil {
		return errors.Wrapf(err, "exists %s", path)
	}
	if exists {
		return nil
	}
	_, err = c.Create(path, []byte{}, 0, zk.WorldACL(zk.PermAll))
	if err != nil && err != zk.ErrNodeExists {
		return errors.Wrapf(err, "create %s", path)
	}
	return nil
}
