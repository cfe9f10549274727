// internal/pkg/zookeeper/lock.go
package zookeeper

import (
	"sort"
	"strings"
	"time"

	"github.com/go-zookeeper/zk"
	"github.com/pkg/errors"
)

const lockRoot = "/qcom/locks"

// DistributedLock 基于 ZooKeeper 临时顺序节点的分布式锁。
// 过期清理任务用它选主：同一资源上序号最小的节点持有锁，
// 其余节点只监听自己的前驱，避免惊群。
type DistributedLock struct {
	conn        *Conn
	path        string
	lockNode    string
	waitTimeout time.Duration
}

// NewDistributedLock 为指定资源创建一个锁实例
func NewDistributedLock(conn *Conn, resourceID string) (*DistributedLock, error) {
	if err := ensurePath(conn, lockRoot); err != nil {
		return nil, err
	}
	lockPath := lockRoot + "/" + resourceID
	if err := ensurePath(conn, lockPath); err != nil {
		return nil, err
	}
	return &DistributedLock{
		conn:        conn,
		path:        lockPath,
		waitTimeout: 30 * time.Second,
	}, nil
}

func ensurePath(conn *Conn, path string) error {
	// 逐级创建持久节点，已存在不是错误
	parts := strings.Split(strings.TrimPrefix(path, "/"), "/")
	current := ""
	for _, part := range parts {
		current += "/" + part
		if _, err := conn.Create(current, []byte{}, 0, zk.WorldACL(zk.PermAll)); err != nil && err != zk.ErrNodeExists {
			return errors.Wrapf(err, "create zk node %s", current)
		}
	}
	return nil
}

// Lock 获取锁，拿不到则等待前驱节点释放，最长等待 waitTimeout
func (l *DistributedLock) Lock() error {
	nodePath, err := l.conn.CreateProtectedEphemeralSequential(l.path+"/lock-", []byte{}, zk.WorldACL(zk.PermAll))
	if err != nil {
		return errors.Wrap(err, "create sequential lock node")
	}
	l.lockNode = nodePath

	for {
		children, _, err := l.conn.Children(l.path)
		if err != nil {
			return errors.Wrap(err, "list lock nodes")
		}
		sort.Strings(children)

		myNode := strings.TrimPrefix(l.lockNode, l.path+"/")
		if myNode == children[0] {
			return nil
		}

		// 只监听自己的前驱节点
		prevIndex := -1
		for i, child := range children {
			if child == myNode {
				prevIndex = i - 1
				break
			}
		}
		if prevIndex < 0 {
			return errors.New("own lock node missing from children")
		}
		prevPath := l.path + "/" + children[prevIndex]

		exists, _, eventChan, err := l.conn.ExistsW(prevPath)
		if err != nil {
			return errors.Wrap(err, "watch previous lock node")
		}
		if !exists {
			continue
		}

		select {
		case event := <-eventChan:
			if event.Type == zk.EventNodeDeleted {
				continue
			}
		case <-time.After(l.waitTimeout):
			// 放弃排队，删掉自己的节点避免阻塞后来者
			_ = l.conn.Delete(l.lockNode, -1)
			l.lockNode = ""
			return errors.New("timeout waiting for lock")
		}
	}
}

// Unlock 释放锁
func (l *DistributedLock) Unlock() error {
	if l.lockNode == "" {
		return errors.New("no lock held")
	}
	if err := l.conn.Delete(l.lockNode, -1); err != nil && err != zk.ErrNoNode {
		return errors.Wrap(err, "delete lock node")
	}
	l.lockNode = ""
	return nil
}
