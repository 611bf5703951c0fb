package leads

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
)

func (s *service) AddAttribute(ctx context.Context, name, dataType string, required bool) (Result, error) {
	def, err := s.addAttribute(ctx, name, dataType, required)
	s.metrics.mutations.WithLabelValues("add", resultLabel(err)).Inc()
	if err != nil {
		return ResultFromError(err)
	}
	return Result{OK: true, Message: fmt.Sprintf("Column %s added successfully", def.Name)}, nil
}

func (s *service) RemoveAttribute(ctx context.Context, name string) (Result, error) {
	def, err := s.removeAttribute(ctx, name)
	s.metrics.mutations.WithLabelValues("remove", resultLabel(err)).Inc()
	if err != nil {
		return ResultFromError(err)
	}
	return Result{OK: true, Message: fmt.Sprintf("Column %s deleted successfully", def.Name)}, nil
}

// addAttribute persists the new definition and publishes the next catalog while holding the
// schema lock exclusively, so no insert or read sees one without the other.
func (s *service) addAttribute(ctx context.Context, name, dataType string, required bool) (AttributeDefinition, error) {
	if err := validateName(name); err != nil {
		return AttributeDefinition{}, err
	}
	dt, err := ParseDataType(dataType)
	if err != nil {
		return AttributeDefinition{}, err
	}
	def := AttributeDefinition{Name: strings.TrimSpace(name), DataType: dt, Required: required}

	s.schemaMu.Lock()
	defer s.schemaMu.Unlock()

	if existing, ok := s.catalog.Lookup(def.Key()); ok {
		return AttributeDefinition{}, newError(CodeDuplicateAttribute, def.Name, "column %q already exists as %q", def.Name, existing.Name)
	}
	if err := s.backend.InsertAttribute(ctx, def); err != nil {
		return AttributeDefinition{}, err
	}

	s.publish(s.catalog.with(def))
	s.log.WithFields(logrus.Fields{
		"attribute":  def.Name,
		"data_type":  def.DataType,
		"required":   def.Required,
		"generation": s.catalog.Generation(),
	}).Info("lead column added")
	return def, nil
}

func (s *service) removeAttribute(ctx context.Context, name string) (AttributeDefinition, error) {
	s.schemaMu.Lock()
	defer s.schemaMu.Unlock()

	def, ok := s.catalog.Lookup(name)
	if !ok {
		return AttributeDefinition{}, newError(CodeUnknownAttribute, name, "column %q does not exist", strings.TrimSpace(name))
	}
	if err := s.backend.DeleteAttribute(ctx, def.Key()); err != nil {
		return AttributeDefinition{}, err
	}

	s.publish(s.catalog.without(def.Key()))
	s.log.WithFields(logrus.Fields{
		"attribute":  def.Name,
		"data_type":  def.DataType,
		"generation": s.catalog.Generation(),
	}).Info("lead column removed")
	return def, nil
}

// publish swaps in the next catalog. Callers hold schemaMu exclusively.
func (s *service) publish(next *Catalog) {
	s.catalog = next
	s.metrics.generation.Set(float64(next.Generation()))
}
