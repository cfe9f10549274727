// internal/pkg/zookeeper/conn.go
package zookeeper

import (
	"time"

	"github.com/go-zookeeper/zk"
	"github.com/pkg/errors"
)

// Conn 封装 ZooKeeper 连接
type Conn struct {
	*zk.Conn
}

// Connect 建立到 ZooKeeper 集群的连接
func Connect(servers []string, sessionTimeout time.Duration) (*Conn, error) {
	conn, _, err := zk.Connect(servers, sessionTimeout)
	if err != nil {
		return nil, errors.Wrap(err, "connect to zookeeper")
	}
	return &Conn{Conn: conn}, nil
}
