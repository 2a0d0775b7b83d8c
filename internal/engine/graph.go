package engine

import (
	"fmt"

	"github.com/shaiso/Flume/internal/domain"
)

// Node — стадия в графе pipeline.
type Node struct {
	// Stage — определение стадии из PipelineSpec.
	Stage *domain.StageDef

	// ID — идентификатор стадии и её выходной коллекции.
	ID string

	// InDegree — количество входящих рёбер.
	InDegree int

	// Inputs — стадии, чьи выходы читает этот узел.
	Inputs []*Node

	// Consumers — стадии, которые читают выход этого узла.
	Consumers []*Node
}

// Kind возвращает тип стадии.
func (n *Node) Kind() domain.StageKind {
	return n.Stage.Kind
}

// Graph — направленный ациклический граф стадий.
type Graph struct {
	// Nodes — все узлы графа (stageID → Node).
	Nodes map[string]*Node

	// Roots — корневые стадии в порядке объявления.
	Roots []*Node

	// Order — топологически отсортированный список узлов.
	Order []*Node
}

// BuildGraph строит граф из PipelineSpec.
//
// Порядок Roots и Order детерминирован: при равенстве
// сохраняется порядок объявления стадий.
func BuildGraph(spec *domain.PipelineSpec) (*Graph, error) {
	g := &Graph{
		Nodes: make(map[string]*Node, len(spec.Stages)),
	}

	// Первый проход: создаём все узлы
	for i := range spec.Stages {
		stage := &spec.Stages[i]
		g.Nodes[stage.ID] = &Node{
			Stage:     stage,
			ID:        stage.ID,
			Inputs:    make([]*Node, 0, len(stage.Inputs)),
			Consumers: make([]*Node, 0),
		}
	}

	// Второй проход: связываем узлы по входам
	for i := range spec.Stages {
		stage := &spec.Stages[i]
		node := g.Nodes[stage.ID]

		for _, in := range stage.Inputs {
			src, ok := g.Nodes[in]
			if !ok {
				return nil, NewValidationError(stage.ID, "inputs",
					fmt.Sprintf("reads unknown stage: %s", in), ErrMissingInput)
			}
			g.addEdge(src, node)
		}
	}

	for i := range spec.Stages {
		if node := g.Nodes[spec.Stages[i].ID]; node.InDegree == 0 {
			g.Roots = append(g.Roots, node)
		}
	}

	order, err := g.topologicalSort(spec)
	if err != nil {
		return nil, err
	}
	g.Order = order

	return g, nil
}

// addEdge добавляет ребро между узлами, пропуская дубликаты.
func (g *Graph) addEdge(from, to *Node) {
	for _, in := range to.Inputs {
		if in.ID == from.ID {
			return
		}
	}
	from.Consumers = append(from.Consumers, to)
	to.Inputs = append(to.Inputs, from)
	to.InDegree++
}

// topologicalSort выполняет топологическую сортировку (алгоритм Кана).
// Возвращает ошибку, если обнаружен цикл.
func (g *Graph) topologicalSort(spec *domain.PipelineSpec) ([]*Node, error) {
	inDegree := make(map[string]int, len(g.Nodes))
	for id, node := range g.Nodes {
		inDegree[id] = node.InDegree
	}

	queue := make([]*Node, len(g.Roots))
	copy(queue, g.Roots)

	order := make([]*Node, 0, len(g.Nodes))

	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		order = append(order, node)

		for _, consumer := range node.Consumers {
			inDegree[consumer.ID]--
			if inDegree[consumer.ID] == 0 {
				queue = append(queue, consumer)
			}
		}
	}

	if len(order) != len(g.Nodes) {
		for i := range spec.Stages {
			if id := spec.Stages[i].ID; inDegree[id] > 0 {
				return nil, NewValidationError(id, "inputs",
					"stage is part of a cycle", ErrCyclicDependency)
			}
		}
		return nil, ErrCyclicDependency
	}

	return order, nil
}

// Node возвращает узел по ID.
func (g *Graph) Node(id string) *Node {
	return g.Nodes[id]
}

// Consumers возвращает стадии, читающие коллекцию.
func (g *Graph) Consumers(collection string) []*Node {
	node, ok := g.Nodes[collection]
	if !ok {
		return nil
	}
	return node.Consumers
}

// Size возвращает количество узлов.
func (g *Graph) Size() int {
	return len(g.Nodes)
}

// Ancestors возвращает множество всех стадий выше по потоку (без самой стадии).
func (g *Graph) Ancestors(id string) map[string]bool {
	seen := make(map[string]bool)
	node, ok := g.Nodes[id]
	if !ok {
		return seen
	}

	stack := append([]*Node(nil), node.Inputs...)
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if seen[n.ID] {
			continue
		}
		seen[n.ID] = true
		stack = append(stack, n.Inputs...)
	}

	return seen
}

// NodesOfKind возвращает узлы заданного типа в топологическом порядке.
func (g *Graph) NodesOfKind(kind domain.StageKind) []*Node {
	nodes := make([]*Node, 0)
	for _, node := range g.Order {
		if node.Kind() == kind {
			nodes = append(nodes, node)
		}
	}
	return nodes
}
