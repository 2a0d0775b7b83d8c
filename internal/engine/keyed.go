package engine

import (
	"fmt"

	"github.com/shaiso/Flume/internal/domain"
)

// KeyedClassifier определяет, какие коллекции разбиты по ключам.
//
// Выход стадии keyed, если стадия производит keyed коллекцию
// (group_by_key, group_into_keyed_work_items) либо сохраняет ключи
// всех своих keyed входов. Serial lanes создаются только для keyed коллекций.
//
// Классификатор одноразовый: Visit вызывается для узлов в
// топологическом порядке, затем Finalize. После этого повторное
// использование запрещено.
type KeyedClassifier struct {
	keyed     map[string]bool
	visited   map[string]bool
	finalized bool
}

// producesKeyed — стадии, выход которых всегда keyed.
var producesKeyed = map[domain.StageKind]bool{
	domain.KindGroupByKey:              true,
	domain.KindGroupIntoKeyedWorkItems: true,
}

// NewKeyedClassifier создаёт новый классификатор.
func NewKeyedClassifier() *KeyedClassifier {
	return &KeyedClassifier{
		keyed:   make(map[string]bool),
		visited: make(map[string]bool),
	}
}

// Visit классифицирует выход одного узла.
// Все входы узла должны быть посещены раньше.
func (c *KeyedClassifier) Visit(node *Node) error {
	if c.finalized {
		return fmt.Errorf("%w: visit %s", ErrAlreadyFinalized, node.ID)
	}

	for _, in := range node.Inputs {
		if !c.visited[in.ID] {
			return fmt.Errorf("visit %s before its input %s: %w", node.ID, in.ID, ErrCyclicDependency)
		}
	}

	c.visited[node.ID] = true

	if producesKeyed[node.Kind()] {
		c.keyed[node.ID] = true
		return nil
	}

	if len(node.Inputs) > 0 && isKeyPreserving(node) {
		allKeyed := true
		for _, in := range node.Inputs {
			if !c.keyed[in.ID] {
				allKeyed = false
				break
			}
		}
		if allKeyed {
			c.keyed[node.ID] = true
		}
	}

	return nil
}

// Finalize завершает обход.
func (c *KeyedClassifier) Finalize() error {
	if c.finalized {
		return ErrAlreadyFinalized
	}
	c.finalized = true
	return nil
}

// KeyedCollections возвращает множество keyed коллекций.
// До Finalize возвращает ErrNotFinalized.
func (c *KeyedClassifier) KeyedCollections() (map[string]bool, error) {
	if !c.finalized {
		return nil, ErrNotFinalized
	}

	out := make(map[string]bool, len(c.keyed))
	for id := range c.keyed {
		out[id] = true
	}
	return out, nil
}

// isKeyPreserving — сохраняет ли стадия ключи входа.
// Сейчас ни одна стадия не объявлена сохраняющей ключи.
func isKeyPreserving(_ *Node) bool {
	return false
}

// ClassifyKeyed обходит граф и возвращает keyed коллекции.
func ClassifyKeyed(g *Graph) (map[string]bool, error) {
	c := NewKeyedClassifier()

	for _, node := range g.Order {
		if err := c.Visit(node); err != nil {
			return nil, err
		}
	}

	if err := c.Finalize(); err != nil {
		return nil, err
	}

	return c.KeyedCollections()
}
