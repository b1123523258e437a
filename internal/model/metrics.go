package model

import "sort"

// Metrics holds held-out evaluation results persisted with each artifact.
type Metrics struct {
	Accuracy  float64 `json:"accuracy"`
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	F1        float64 `json:"f1"`
	ROCAUC    float64 `json:"roc_auc"`

	TruePositives  int `json:"true_positives"`
	TrueNegatives  int `json:"true_negatives"`
	FalsePositives int `json:"false_positives"`
	FalseNegatives int `json:"false_negatives"`
}

// Evaluate computes classification metrics at the 0.5 threshold plus
// threshold-free ROC-AUC from the probabilities.
func Evaluate(probs []float64, labels []float64) Metrics {
	var m Metrics
	for i, p := range probs {
		pred := p >= 0.5
		pos := labels[i] >= 0.5
		switch {
		case pred && pos:
			m.TruePositives++
		case pred && !pos:
			m.FalsePositives++
		case !pred && pos:
			m.FalseNegatives++
		default:
			m.TrueNegatives++
		}
	}

	total := len(probs)
	if total > 0 {
		m.Accuracy = float64(m.TruePositives+m.TrueNegatives) / float64(total)
	}
	if m.TruePositives+m.FalsePositives > 0 {
		m.Precision = float64(m.TruePositives) / float64(m.TruePositives+m.FalsePositives)
	}
	if m.TruePositives+m.FalseNegatives > 0 {
		m.Recall = float64(m.TruePositives) / float64(m.TruePositives+m.FalseNegatives)
	}
	if m.Precision+m.Recall > 0 {
		m.F1 = 2 * m.Precision * m.Recall / (m.Precision + m.Recall)
	}
	m.ROCAUC = rocAUC(probs, labels)
	return m
}

// rocAUC is the Mann-Whitney rank statistic: the probability a random
// positive scores above a random negative, with ties counted half.
func rocAUC(probs []float64, labels []float64) float64 {
	n := len(probs)
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	sort.Slice(idx, func(a, b int) bool { return probs[idx[a]] < probs[idx[b]] })

	// Average ranks over tied scores.
	ranks := make([]float64, n)
	for i := 0; i < n; {
		j := i
		for j < n && probs[idx[j]] == probs[idx[i]] {
			j++
		}
		avg := float64(i+j+1) / 2 // ranks are 1-based
		for k := i; k < j; k++ {
			ranks[idx[k]] = avg
		}
		i = j
	}

	var posRankSum float64
	var pos, neg int
	for i, l := range labels {
		if l >= 0.5 {
			pos++
			posRankSum += ranks[i]
		} else {
			neg++
		}
	}
	if pos == 0 || neg == 0 {
		return 0.5
	}
	return (posRankSum - float64(pos)*float64(pos+1)/2) / (float64(pos) * float64(neg))
}
