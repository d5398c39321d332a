package main

import (
	"fmt"
	"strings"

	"github.com/undetectableai/truthscan-twitter-bot/internal/datastore"
	"gorm.io/gorm"
)

// Verifier performs post-migration verification.
type Verifier struct {
	sourceDB *gorm.DB
	targetDB *gorm.DB
}

// NewVerifier creates a new Verifier.
func NewVerifier(sourceDB, targetDB *gorm.DB) *Verifier {
	return &Verifier{
		sourceDB: sourceDB,
		targetDB: targetDB,
	}
}

// Verify performs all verification checks.
func (v *Verifier) Verify() error {
	// Count verification
	if err := v.verifyCounts(); err != nil {
		return fmt.Errorf("count verification failed: %w", err)
	}

	// Sample verification
	if err := v.verifySamples(); err != nil {
		return fmt.Errorf("sample verification failed: %w", err)
	}

	return nil
}

// verifyCounts compares record counts between source and target.
// Counts are unscoped so soft-deleted detections are included on both sides.
func (v *Verifier) verifyCounts() error {
	fmt.Println("\nVerifying record counts...")

	tables := []struct {
		name  string
		model any
	}{
		{"detections", &datastore.Detection{}},
		{"detection_pages", &datastore.DetectionPage{}},
	}

	allMatch := true
	fmt.Printf("%-20s %12s %12s %8s\n", "Table", "Source", "Target", "Match")
	fmt.Println(strings.Repeat("-", 56))

	for _, t := range tables {
		var sourceCount, targetCount int64

		if err := v.sourceDB.Unscoped().Model(t.model).Count(&sourceCount).Error; err != nil {
			return fmt.Errorf("failed to count source %s: %w", t.name, err)
		}

		if err := v.targetDB.Unscoped().Model(t.model).Count(&targetCount).Error; err != nil {
			return fmt.Errorf("failed to count target %s: %w", t.name, err)
		}

		match := "✓"
		if sourceCount != targetCount {
			match = "✗"
			allMatch = false
		}

		fmt.Printf("%-20s %12d %12d %8s\n", t.name, sourceCount, targetCount, match)
	}

	if !allMatch {
		return fmt.Errorf("record counts do not match")
	}

	fmt.Println("\nAll counts match!")
	return nil
}

// verifySamples verifies random samples from both tables.
func (v *Verifier) verifySamples() error {
	fmt.Println("\nVerifying sample records...")

	if err := v.sampleDetections(5); err != nil {
		return fmt.Errorf("detections sampling failed: %w", err)
	}

	if err := v.samplePages(5); err != nil {
		return fmt.Errorf("detection_pages sampling failed: %w", err)
	}

	fmt.Println("Sample verification passed!")
	return nil
}

// sampleDetections verifies random Detection records.
func (v *Verifier) sampleDetections(count int) error {
	// Get random records from source, including soft-deleted ones
	var sourceDetections []datastore.Detection
	if err := v.sourceDB.Unscoped().Order("RANDOM()").Limit(count).Find(&sourceDetections).Error; err != nil {
		return fmt.Errorf("failed to fetch source samples: %w", err)
	}

	if len(sourceDetections) == 0 {
		fmt.Println("  Detections: no records to sample")
		return nil
	}

	// Verify each in target using index to avoid copying the blob
	for i := range sourceDetections {
		src := &sourceDetections[i]
		var target datastore.Detection
		if err := v.targetDB.Unscoped().First(&target, "id = ?", src.ID).Error; err != nil {
			return fmt.Errorf("detection %s not found in target: %w", src.ID, err)
		}

		// Verify critical fields
		if src.Source != target.Source {
			return fmt.Errorf("detection %s: Source mismatch (%s vs %s)",
				src.ID, src.Source, target.Source)
		}
		if src.OracleStatus != target.OracleStatus {
			return fmt.Errorf("detection %s: OracleStatus mismatch (%s vs %s)",
				src.ID, src.OracleStatus, target.OracleStatus)
		}
		if src.ImageURL != target.ImageURL {
			return fmt.Errorf("detection %s: ImageURL mismatch", src.ID)
		}
		if !floatPtrEqual(src.AIProbability, target.AIProbability) {
			return fmt.Errorf("detection %s: AIProbability mismatch", src.ID)
		}
		if src.DeletedAt.Valid != target.DeletedAt.Valid {
			return fmt.Errorf("detection %s: soft-delete state mismatch", src.ID)
		}
	}

	fmt.Printf("  Detections: %d samples verified\n", len(sourceDetections))
	return nil
}

// samplePages verifies random DetectionPage records.
func (v *Verifier) samplePages(count int) error {
	// Get random records from source
	var sourcePages []datastore.DetectionPage
	if err := v.sourceDB.Order("RANDOM()").Limit(count).Find(&sourcePages).Error; err != nil {
		return fmt.Errorf("failed to fetch source samples: %w", err)
	}

	if len(sourcePages) == 0 {
		fmt.Println("  Pages: no records to sample")
		return nil
	}

	// Verify each in target
	for _, src := range sourcePages {
		var target datastore.DetectionPage
		if err := v.targetDB.First(&target, "page_id = ?", src.PageID).Error; err != nil {
			return fmt.Errorf("page %s not found in target: %w", src.PageID, err)
		}

		// Verify critical fields
		if src.DetectionID != target.DetectionID {
			return fmt.Errorf("page %s: DetectionID mismatch (%s vs %s)",
				src.PageID, src.DetectionID, target.DetectionID)
		}
		if src.ViewCount != target.ViewCount {
			return fmt.Errorf("page %s: ViewCount mismatch (%d vs %d)",
				src.PageID, src.ViewCount, target.ViewCount)
		}
	}

	fmt.Printf("  Pages: %d samples verified\n", len(sourcePages))
	return nil
}

// floatPtrEqual compares two optional floats, treating two nils as equal.
func floatPtrEqual(a, b *float64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
