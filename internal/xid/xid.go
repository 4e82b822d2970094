package xid

import (
	"fmt"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
)

func New(prefix string) string {
	id, err := uuid.NewRandom()
	if err != nil {
		return fmt.Sprintf("%s-%d", prefix, time.Now().UnixNano())
	}
	return fmt.Sprintf("%s-%s", prefix, id.String())
}

var (
	nodeMu sync.Mutex
	node   *snowflake.Node
)

// SetNode configures the snowflake node used for receipt numbers. Terminals
// sharing one record store need distinct node ids.
func SetNode(id int64) error {
	n, err := snowflake.NewNode(id)
	if err != nil {
		return err
	}
	nodeMu.Lock()
	node = n
	nodeMu.Unlock()
	return nil
}

// ReceiptNumber returns a time ordered numeric id for bills.
func ReceiptNumber() string {
	nodeMu.Lock()
	defer nodeMu.Unlock()
	if node == nil {
		n, err := snowflake.NewNode(1)
		if err != nil {
			return fmt.Sprintf("%d", time.Now().UnixNano())
		}
		node = n
	}
	return node.Generate().String()
}
