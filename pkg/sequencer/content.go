package sequencer

import (
	"fmt"
	"strconv"

	"github.com/dialstudy/dialstudy/pkg/experiment"
	"github.com/dialstudy/dialstudy/pkg/screen"
)

var instructionText = map[string]string{
	experiment.ConditionDynamic: "You will watch a series of short videos of people giving an alibi. " +
		"While each video plays, turn the dial toward Lie or Truth to show what you currently believe. " +
		"You may change your rating as often as you like. Press the dial once you are certain; " +
		"otherwise your rating at the end of the video is recorded.",
	experiment.ConditionDichotomous: "You will watch a series of short videos of people giving an alibi. " +
		"While each video plays, turn the dial toward Lie or Truth to show what you currently believe. " +
		"When the video ends you will be asked for a final decision.",
	experiment.ConditionLockIn: "You will watch a series of short videos of people giving an alibi. " +
		"Press the dial as soon as you have decided whether the person is lying or telling the truth. " +
		"You will then be asked for your decision.",
}

// Demographics choices.
var (
	genderChoices = []string{"Female", "Male", "Non-binary", "Prefer to self-describe", "Prefer not to say"}
	raceChoices   = []string{
		"American Indian or Alaska Native",
		"Asian",
		"Black or African American",
		"Hispanic or Latino",
		"Native Hawaiian or Other Pacific Islander",
		"White",
		"Multiracial",
		"Prefer not to say",
	}
)

// consentScreens shows the consent images of the document, if any.
func consentScreens(doc *experiment.Document) []screen.Screen {
	screens := make([]screen.Screen, 0, len(doc.Consent))
	for i, path := range doc.Consent {
		screens = append(screens, screen.NewImage("consent_"+strconv.Itoa(i+1), path))
	}
	return screens
}

// instructionScreens selects the instruction variant of a condition:
// document images when configured, built-in text otherwise.
func instructionScreens(doc *experiment.Document, condition string) []screen.Screen {
	if images := doc.Instructions[condition]; len(images) > 0 {
		screens := make([]screen.Screen, 0, len(images))
		for i, path := range images {
			screens = append(screens, screen.NewImage(fmt.Sprintf("instructions_%s_%d", condition, i+1), path))
		}
		return screens
	}
	return []screen.Screen{
		screen.NewInfo("instructions_"+condition, "Instructions", instructionText[condition]),
	}
}

func reminderScreen(t Trial, total int) screen.Screen {
	body := "Take a short break. Press the dial when you are ready for the next video."
	if t.Block == total {
		body = "That was the last video. Press the dial to continue."
	}
	return screen.NewInfo(
		"reminder_"+strconv.Itoa(t.VideoID),
		fmt.Sprintf("Video %d of %d complete", t.Block, total),
		body,
	)
}

func demographicScreens() []screen.Screen {
	return []screen.Screen{
		screen.NewTextEntry(AgeDatasetName, "What is your age?", screen.InputNumber),
		screen.NewMultipleChoice(GenderDatasetName, "What is your gender?", genderChoices),
		screen.NewMultipleChoice(RaceDatasetName, "What is your race or ethnicity?", raceChoices),
	}
}

func finalScreens() []screen.Screen {
	return []screen.Screen{
		screen.NewInfo("debrief", "Thank you",
			"The study is complete. Please let the experimenter know you have finished."),
	}
}
