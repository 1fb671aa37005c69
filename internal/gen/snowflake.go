package gen

import (
	"fmt"

	"github.com/bwmarrin/snowflake"
)

// SnowflakeNode hands out time-ordered 64-bit ids for rows this service
// inserts. Client-side ids keep inserts free of RETURNING/LastInsertId,
// which differ between SQLite and PostgreSQL.
type SnowflakeNode struct {
	node *snowflake.Node
}

func NewSnowflakeNode(nodeID int64) (*SnowflakeNode, error) {
	node, err := snowflake.NewNode(nodeID)
	if err != nil {
		return nil, fmt.Errorf("failed to init snowflake node %d: %w", nodeID, err)
	}
	return &SnowflakeNode{node: node}, nil
}

func (s *SnowflakeNode) NextID() int64 {
	return s.node.Generate().Int64()
}
