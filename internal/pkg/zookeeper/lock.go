// internal/pkg/zookeeper/lock.go
package zookeeper

import (
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-zookeeper/zk"
	"github.com/pkg/errors"
)

const lockRoot = "/mercado/stock_locks" // 库存锁的根节点

// DistributedLock 基于临时顺序节点实现的单资源互斥锁。
// 多个库存引擎实例对同一商品的扣减通过它串行化。
type DistributedLock struct {
	conn     *Conn
	path     string // 例如 /mercado/stock_locks/product-42
	lockNode string // 成功获取锁后自己创建的节点
	timeout  time.Duration
}

func NewDistributedLock(conn *Conn, resourceID string, timeout time.Duration) (*DistributedLock, error) {
	if err := conn.EnsurePath("/mercado"); err != nil {
		return nil, err
	}
	if err := conn.EnsurePath(lockRoot); err != nil {
		return nil, err
	}
	lockPath := lockRoot + "/" + resourceID
	if err := conn.EnsurePath(lockPath); err != nil {
		return nil, err
	}
	return &DistributedLock{conn: conn, path: lockPath, timeout: timeout}, nil
}

// Lock 获取锁，获取不到则等待，超时返回错误。
func (l *DistributedLock) Lock() error {
	// 创建临时顺序节点：/mercado/stock_locks/<resource>/lock-NNNN
	nodePath, err := l.conn.CreateProtectedEphemeralSequential(l.path+"/lock-", []byte{}, zk.WorldACL(zk.PermAll))
	if err != nil {
		return errors.Wrap(err, "create sequential node")
	}
	l.lockNode = nodePath

	deadline := time.Now().Add(l.timeout)
	for {
		children, _, err := l.conn.Children(l.path)
		if err != nil {
			return errors.Wrap(err, "list lock children")
		}
		sortBySequence(children)

		myNodeName := strings.TrimPrefix(l.lockNode, l.path+"/")
		if myNodeName == children[0] {
			return nil // 最小节点，拿到锁
		}

		// 只监听前一个节点，避免惊群
		prev := -1
		for i, child := range children {
			if child == myNodeName {
				prev = i - 1
				break
			}
		}
		if prev < 0 {
			return errors.New("own lock node missing from children")
		}
		prevPath := l.path + "/" + children[prev]

		exists, _, eventChan, err := l.conn.ExistsW(prevPath)
		if err != nil {
			if err == zk.ErrNoNode {
				continue
			}
			return errors.Wrap(err, "watch previous node")
		}
		if !exists {
			continue
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			l.Unlock()
			return errors.New("timeout waiting for lock")
		}
		select {
		case event := <-eventChan:
			if event.Type == zk.EventNodeDeleted {
				continue
			}
		case <-time.After(remaining):
			l.Unlock()
			return errors.New("timeout waiting for lock")
		}
	}
}

// sortBySequence 按节点名结尾的序列号排序。受保护的顺序节点名形如
// _c_<guid>-lock-0000000010，字典序会按随机 guid 排，后来者可能被
// 误判成最小节点而与持有者同时拿到锁；竞争顺序只由序列号决定。
func sortBySequence(children []string) {
	sort.Slice(children, func(i, j int) bool {
		return sequenceOf(children[i]) < sequenceOf(children[j])
	})
}

// sequenceOf 提取节点名末尾的序列号。解析不了的节点排到最后，
// 不参与抢锁。
func sequenceOf(name string) int {
	idx := strings.LastIndex(name, "-")
	if idx < 0 || idx+1 >= len(name) {
		return math.MaxInt
	}
	n, err := strconv.Atoi(name[idx+1:])
	if err != nil {
		return math.MaxInt
	}
	return n
}

// Unlock 释放锁。
func (l *DistributedLock) Unlock() error {
	if l.lockNode == "" {
		return errors.New("no lock to unlock")
	}
	err := l.conn.Delete(l.lockNode, -1)
	if err != nil && err != zk.ErrNoNode {
		return errors.Wrap(err, "delete lock node")
	}
	l.lockNode = ""
	return nil
}
