package mesh

import "fmt"

// AddView creates an empty view and returns its tag. Tags start at 0.
func (s *Session) AddView(name string) (int, error) {
	if err := s.check(); err != nil {
		return 0, err
	}
	tag := 0
	for _, v := range s.views {
		tag = max(tag, v.Tag+1)
	}
	s.views = append(s.views, &View{Tag: tag, Name: name})
	return tag, nil
}

func (s *Session) view(tag int) (*View, error) {
	for _, v := range s.views {
		if v.Tag == tag {
			return v, nil
		}
	}
	return nil, fmt.Errorf("%w: %d", ErrNoView, tag)
}

// AddModelData sets the element data of view tag: ncomp values for each of
// elementTags, in order. Every element must exist in the model.
func (s *Session) AddModelData(tag int, elementTags []int, data []float64, ncomp int) error {
	if err := s.check(); err != nil {
		return err
	}
	v, err := s.view(tag)
	if err != nil {
		return err
	}
	if ncomp < 1 || len(data) != len(elementTags)*ncomp {
		return fmt.Errorf("mesh: %d values for %d elements with %d components", len(data), len(elementTags), ncomp)
	}
	known := make(map[int]struct{})
	for d := range s.entities {
		for _, e := range s.entities[d] {
			for _, b := range e.blocks {
				for _, t := range b.tags {
					known[t] = struct{}{}
				}
			}
		}
	}
	for _, t := range elementTags {
		if _, ok := known[t]; !ok {
			return fmt.Errorf("mesh: view %q references unknown element %d", v.Name, t)
		}
	}
	v.NComp = ncomp
	v.ElementTags = append([]int(nil), elementTags...)
	v.Data = append([]float64(nil), data...)
	return nil
}

// Views returns the views of the model in tag order.
func (s *Session) Views() []View {
	out := make([]View, 0, len(s.views))
	for _, v := range s.views {
		out = append(out, *v)
	}
	return out
}

// ViewByName returns the first view called name.
func (s *Session) ViewByName(name string) (View, bool) {
	for _, v := range s.views {
		if v.Name == name {
			return *v, true
		}
	}
	return View{}, false
}
