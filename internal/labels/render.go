package labels

import (
	"fmt"
	"time"

	"github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/code"
	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/props"
)

var markdownRed = &props.Color{Red: 200, Green: 16, Blue: 46}

// Render lays out labels as a printable PDF.
func Render(storeID string, labels []Label, generatedAt time.Time) ([]byte, error) {
	cfg := config.NewBuilder().
		WithCreationDate(generatedAt).
		WithPageNumber(props.PageNumber{
			Pattern: "Page {current} of {total}",
			Place:   props.RightBottom,
		}).
		Build()

	m := maroto.New(cfg)

	m.AddRow(14,
		text.NewCol(8, "Markdown labels, store "+storeID, props.Text{
			Size:  16,
			Style: fontstyle.Bold,
		}),
		text.NewCol(4, generatedAt.UTC().Format("2006-01-02 15:04 UTC"), props.Text{
			Size:  9,
			Align: align.Right,
			Top:   3,
		}),
	)

	if len(labels) == 0 {
		m.AddRow(12, text.NewCol(12, "No active markdowns", props.Text{Size: 11, Top: 4}))
	}

	for _, l := range labels {
		m.AddRow(10,
			text.NewCol(8, l.Name, props.Text{Size: 12, Style: fontstyle.Bold, Top: 2}),
			text.NewCol(4, fmt.Sprintf("%d%% OFF", l.DiscountPercent), props.Text{
				Size:  14,
				Style: fontstyle.Bold,
				Align: align.Right,
				Color: markdownRed,
				Top:   2,
			}),
		)
		m.AddRow(16,
			col.New(4).Add(
				text.New("Was $"+l.WasPrice.StringFixed(2), props.Text{Size: 10}),
				text.New("Now $"+l.NowPrice.StringFixed(2), props.Text{Size: 16, Style: fontstyle.Bold, Top: 5, Color: markdownRed}),
			),
			col.New(3).Add(
				text.New("Best by "+l.BestByDate, props.Text{Size: 9}),
				text.New(expiryNote(l.DaysToExpiry), props.Text{Size: 9, Top: 5}),
			),
			code.NewBarCol(5, l.SKU, props.Barcode{Percent: 80, Center: true}),
		)
		m.AddRow(6, text.NewCol(12, l.SKU, props.Text{Size: 7, Align: align.Right}))
	}

	doc, err := m.Generate()
	if err != nil {
		return nil, err
	}
	return doc.GetBytes(), nil
}

func expiryNote(days int) string {
	switch {
	case days < 0:
		return "Expired"
	case days == 0:
		return "Expires today"
	case days == 1:
		return "Expires tomorrow"
	default:
		return fmt.Sprintf("Expires in %d days", days)
	}
}
