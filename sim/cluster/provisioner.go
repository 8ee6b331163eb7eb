package cluster

import (
	"errors"
	"fmt"
)

// ErrInsufficientCapacity is returned when an allocation would exceed a host's capacity.
var ErrInsufficientCapacity = errors.New("insufficient capacity")

// Provisioner accepts or rejects allocations of one resource kind against a fixed
// capacity. Allocations are keyed by VM ID: allocating again for the same VM replaces
// the previous amount instead of adding to it.
type Provisioner interface {
	// Kind names the provisioned resource ("mips", "ram", ...).
	Kind() string
	Capacity() float64
	Allocated() float64
	Available() float64
	AllocatedFor(vmID int) float64
	// Fits reports whether allocating amount for vmID would stay within capacity.
	Fits(vmID int, amount float64) bool
	Allocate(vmID int, amount float64) error
	Deallocate(vmID int)
}

// SimpleProvisioner is a Provisioner that hands out capacity first-come first-served.
type SimpleProvisioner struct {
	kind     string
	capacity float64
	used     float64
	byVM     map[int]float64
}

// NewSimpleProvisioner creates a provisioner for kind with the given capacity.
func NewSimpleProvisioner(kind string, capacity float64) *SimpleProvisioner {
	return &SimpleProvisioner{
		kind:     kind,
		capacity: capacity,
		byVM:     make(map[int]float64),
	}
}

func (p *SimpleProvisioner) Kind() string                  { return p.kind }
func (p *SimpleProvisioner) Capacity() float64             { return p.capacity }
func (p *SimpleProvisioner) Allocated() float64            { return p.used }
func (p *SimpleProvisioner) Available() float64            { return p.capacity - p.used }
func (p *SimpleProvisioner) AllocatedFor(vmID int) float64 { return p.byVM[vmID] }

func (p *SimpleProvisioner) Fits(vmID int, amount float64) bool {
	if amount < 0 {
		return false
	}
	return p.used-p.byVM[vmID]+amount <= p.capacity
}

func (p *SimpleProvisioner) Allocate(vmID int, amount float64) error {
	if !p.Fits(vmID, amount) {
		return fmt.Errorf("%s: vm %d requests %.1f, %.1f available: %w",
			p.kind, vmID, amount, p.Available()+p.byVM[vmID], ErrInsufficientCapacity)
	}
	p.used += amount - p.byVM[vmID]
	p.byVM[vmID] = amount
	return nil
}

func (p *SimpleProvisioner) Deallocate(vmID int) {
	amount, ok := p.byVM[vmID]
	if !ok {
		return
	}
	p.used -= amount
	delete(p.byVM, vmID)
}
